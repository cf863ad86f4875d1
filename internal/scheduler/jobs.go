package scheduler

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Job is a cron trigger that runs a named chain with a fixed input.
type Job struct {
	Name     string         `yaml:"name"`
	Chain    string         `yaml:"chain"`
	Cron     string         `yaml:"cron"`
	Input    map[string]any `yaml:"input,omitempty"`
	Disabled bool           `yaml:"disabled,omitempty"`
}

type jobsFile struct {
	Jobs []Job `yaml:"jobs"`
}

// cronParser accepts standard five-field expressions and descriptors such
// as @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// LoadJobsFile reads jobs from a schedules file. A missing file means no jobs.
func LoadJobsFile(path string) ([]Job, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open schedules: %w", err)
	}
	defer f.Close()
	return LoadJobs(f)
}

// LoadJobs decodes and checks jobs. Unknown fields are rejected.
func LoadJobs(r io.Reader) ([]Job, error) {
	var jf jobsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&jf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}

	seen := make(map[string]bool, len(jf.Jobs))
	for i, job := range jf.Jobs {
		if err := job.check(); err != nil {
			return nil, fmt.Errorf("jobs[%d]: %w", i, err)
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("jobs[%d]: duplicate job name %q", i, job.Name)
		}
		seen[job.Name] = true
	}
	return jf.Jobs, nil
}

func (j Job) check() error {
	if j.Name == "" {
		return errors.New("job name is required")
	}
	if j.Chain == "" {
		return fmt.Errorf("job %q: chain is required", j.Name)
	}
	if _, err := cronParser.Parse(j.Cron); err != nil {
		return fmt.Errorf("job %q: parse cron expression %q: %w", j.Name, j.Cron, err)
	}
	return nil
}
