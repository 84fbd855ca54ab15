package beakerwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// JobSource produces the serialized job definition to submit.
type JobSource interface {
	JobXML(ctx context.Context) (string, error)
}

// FileSource reads the job XML from a file, optionally resolved against a
// workspace directory. The file is checked for existence before reading so
// a missing job file surfaces as a preparation failure, not a read error.
type FileSource struct {
	Dir  string // workspace root; Path is relative to it when set
	Path string
}

func (f FileSource) JobXML(ctx context.Context) (string, error) {
	p := f.Path
	if f.Dir != "" {
		p = filepath.Join(f.Dir, f.Path)
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("job file %s does not exist: %w", p, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read job file %s: %w", p, err)
	}
	return string(data), nil
}

// XMLSource is a job definition held in memory.
type XMLSource string

func (s XMLSource) JobXML(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty job definition")
	}
	return string(s), nil
}
