package store

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tables the console needs if they do not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS admin_gesture_states (
  admin_id uuid PRIMARY KEY,
  slots jsonb NOT NULL DEFAULT '[]'::jsonb,
  version bigint NOT NULL DEFAULT 1,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
  id uuid PRIMARY KEY,
  admin_id uuid NOT NULL UNIQUE,
  gesture_ids jsonb NOT NULL DEFAULT '[]'::jsonb,
  status text NOT NULL,
  reject_reason text NOT NULL DEFAULT '',
  artifact_paths jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions (status, updated_at DESC);

CREATE TABLE IF NOT EXISTS training_runs (
  id uuid PRIMARY KEY,
  status text NOT NULL,
  dataset_size bigint NOT NULL DEFAULT 0,
  pose_counts jsonb NOT NULL DEFAULT '[]'::jsonb,
  log jsonb NOT NULL DEFAULT '[]'::jsonb,
  summary jsonb,
  started_at timestamptz,
  finished_at timestamptz,
  exit_code integer,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_training_runs_created_at ON training_runs (created_at DESC);

CREATE TABLE IF NOT EXISTS gesture_samples (
  id bigserial PRIMARY KEY,
  pose_label text NOT NULL,
  gesture_type text NOT NULL DEFAULT 'static',
  left_finger_0 integer NOT NULL DEFAULT 0,
  left_finger_1 integer NOT NULL DEFAULT 0,
  left_finger_2 integer NOT NULL DEFAULT 0,
  left_finger_3 integer NOT NULL DEFAULT 0,
  left_finger_4 integer NOT NULL DEFAULT 0,
  right_finger_0 integer NOT NULL DEFAULT 0,
  right_finger_1 integer NOT NULL DEFAULT 0,
  right_finger_2 integer NOT NULL DEFAULT 0,
  right_finger_3 integer NOT NULL DEFAULT 0,
  right_finger_4 integer NOT NULL DEFAULT 0,
  motion_x_start double precision NOT NULL DEFAULT 0,
  motion_y_start double precision NOT NULL DEFAULT 0,
  motion_x_mid double precision NOT NULL DEFAULT 0,
  motion_y_mid double precision NOT NULL DEFAULT 0,
  motion_x_end double precision NOT NULL DEFAULT 0,
  motion_y_end double precision NOT NULL DEFAULT 0,
  main_axis_x double precision NOT NULL DEFAULT 0,
  main_axis_y double precision NOT NULL DEFAULT 0,
  delta_x double precision NOT NULL DEFAULT 0,
  delta_y double precision NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_gesture_samples_pose_label ON gesture_samples (pose_label);
`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
