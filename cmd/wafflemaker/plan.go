package main

import (
	"fmt"

	"github.com/cuemby/wafflemaker/pkg/config"
	"github.com/cuemby/wafflemaker/pkg/planner"
)

func runPlan(cfg *config.Config, from string) error {
	pl := planner.New(cfg.Source.RepoPath)

	deployment, jobs, err := pl.Plan(from)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if deployment == nil {
		fmt.Println("no commit transition; nothing to plan")
		return nil
	}

	fmt.Printf("commit %s -> %d service(s) touched, %d job(s)\n", deployment.Commit, len(deployment.Changes), len(jobs))
	for _, job := range jobs {
		fmt.Printf("  %-10s service=%s\n", job.Kind, job.ServiceID)
	}
	return nil
}
