package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	fileutil "mangadl/internal/file"
	"mangadl/internal/model"
)

// JobStore persists job snapshots across restarts.
type JobStore interface {
	SaveJob(ctx context.Context, j *Job) error
	LoadJobs(ctx context.Context) ([]*Job, error)
}

// fileStore keeps one status.json per job under <dataDir>/jobs/<id>.
type fileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) JobStore { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileStore{dataDir: dataDir}
}

func (s *fileStore) jobDir(jobID string) string {
	return filepath.Join(s.dataDir, "jobs", jobID)
}

func (s *fileStore) statusPath(jobID string) string {
	return filepath.Join(s.jobDir(jobID), "status.json")
}

func (s *fileStore) SaveJob(_ context.Context, j *Job) error {
	if err := fileutil.EnsureDir(s.jobDir(j.ID)); err != nil {
		return fmt.Errorf("ensure job dir: %w", err)
	}
	return fileutil.WriteJSONAtomic(s.statusPath(j.ID), j) //nolint:wrapcheck
}

func (s *fileStore) LoadJobs(_ context.Context) ([]*Job, error) {
	root := filepath.Join(s.dataDir, "jobs")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	jobs := make([]*Job, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		j, err := s.readJob(e.Name())
		if err != nil {
			log.Warn().Str("job_id", e.Name()).Err(err).Msg("skipping unreadable job status")
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// readJob decodes one status.json. The directory name is authoritative for
// the ID, so a file copied between job dirs is rejected.
func (s *fileStore) readJob(jobID string) (*Job, error) {
	b, err := os.ReadFile(s.statusPath(jobID)) //nolint:gosec // path is controlled by application
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStatus, err)
	}
	if j.ID != jobID {
		return nil, fmt.Errorf("%w: id %q in dir %q", ErrCorruptStatus, j.ID, jobID)
	}
	if j.Events == nil {
		j.Events = make([]Event, 0)
	}
	if j.Pages == nil {
		j.Pages = make([]model.PageTask, 0)
	}
	return &j, nil
}
