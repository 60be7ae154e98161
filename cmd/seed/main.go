// seed inserts demo courses into the MongoDB course directory and prints development access tokens.
// Idempotent: courses are upserted by id.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"cheqr/backend/internal/config"
	coursedomain "cheqr/backend/internal/course/domain"
	courserepo "cheqr/backend/internal/course/repository"
	"cheqr/backend/internal/logging"
	"cheqr/backend/internal/policy/engine"
	"cheqr/backend/internal/security"
)

const (
	devLecturerID  = "dev-lecturer-001"
	devLecturer2ID = "dev-lecturer-002"
	devStudentID   = "dev-student-001"
	devStudent2ID  = "dev-student-002"
	devAdminID     = "dev-admin-001"
)

var demoCourses = []*coursedomain.Course{
	{
		ID:                 "dev-course-cs101",
		Code:               "CS101",
		Name:               "Introduction to Computing",
		LecturerID:         devLecturerID,
		EnrolledStudentIDs: []string{devStudentID, devStudent2ID},
	},
	{
		ID:                 "dev-course-ma201",
		Code:               "MA201",
		Name:               "Linear Algebra",
		LecturerID:         devLecturer2ID,
		EnrolledStudentIDs: []string{devStudentID},
	},
}

func main() {
	policyOut := flag.String("policy-out", "", "Write the built-in authorization policy to this file for AUTHZ_POLICY_FILE")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, true, "cheqr-seed")

	if *policyOut != "" {
		if err := os.WriteFile(*policyOut, []byte(engine.DefaultRegoPolicy), 0o644); err != nil {
			log.Fatal().Err(err).Msg("write policy")
		}
		log.Info().Str("path", *policyOut).Msg("seed: wrote default policy")
	}

	if cfg.MongoURI == "" {
		log.Fatal().Msg("MONGO_URI is not set; create a .env or export MONGO_URI")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := courserepo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatal().Err(err).Msg("mongo")
	}
	defer func() { _ = repo.Close(context.Background()) }()

	for _, c := range demoCourses {
		if err := repo.Upsert(ctx, c); err != nil {
			log.Fatal().Err(err).Str("course_id", c.ID).Msg("seed: upsert course")
		}
		log.Info().Str("course_id", c.ID).Str("code", c.Code).Msg("seed: course ready")
	}

	if cfg.JWTPrivateKey == "" {
		log.Info().Msg("seed: JWT_PRIVATE_KEY not set; skipping dev tokens")
		return
	}
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("JWT_PRIVATE_KEY")
	}
	tokens := security.NewTokenProvider(signer, nil, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	for _, id := range []struct{ user, role string }{
		{devLecturerID, security.RoleLecturer},
		{devLecturer2ID, security.RoleLecturer},
		{devStudentID, security.RoleStudent},
		{devStudent2ID, security.RoleStudent},
		{devAdminID, security.RoleAdmin},
	} {
		tok, exp, err := tokens.IssueAccess(id.user, id.role)
		if err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
		fmt.Printf("%s (%s, expires %s)\n%s\n\n", id.user, id.role, exp.Format(time.RFC3339), tok)
	}
}
