package domain

// Course is the slice of a course record the attendance engine reads. The course-management service owns it.
type Course struct {
	ID                 string
	Code               string
	Name               string
	LecturerID         string
	EnrolledStudentIDs []string
}

// IsEnrolled reports whether studentID is in the course's enrollment list.
func (c *Course) IsEnrolled(studentID string) bool {
	if c == nil || studentID == "" {
		return false
	}
	for _, id := range c.EnrolledStudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}
