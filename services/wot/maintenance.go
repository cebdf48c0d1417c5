// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wot

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
)

// RunMaintenance periodically verifies the incrementally maintained score
// trees against a from-scratch recomputation. Divergence is repaired
// inside the store; the loop only reports it. Blocks until ctx is done.
func (s *Service) RunMaintenance(ctx context.Context) {
	interval := s.cfg.Maintenance.VerifyInterval.Std()
	if interval <= 0 {
		s.logger.Info("score verification disabled")
		<-ctx.Done()
		return
	}

	s.logger.Info("maintenance loop started", "verify_interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance loop stopped")
			return
		case <-ticker.C:
			s.verifyOnce()
		}
	}
}

func (s *Service) verifyOnce() {
	start := time.Now()
	err := s.store.VerifyScores()
	switch {
	case errors.Is(err, graph.ErrScoreDivergence):
		s.logger.Error("score verification repaired diverged trees",
			"duration", time.Since(start))
	case err != nil:
		s.logger.Error("score verification failed", "error", err)
	default:
		s.logger.Debug("score verification clean", "duration", time.Since(start))
	}
}
