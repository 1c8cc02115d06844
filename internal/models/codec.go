package models

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

var ErrInvalidJob = errors.New("invalid payment job")

func EncodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

// DecodeJob parses a job read from the payments channel.
func DecodeJob(payload []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.CorrelationID == "" {
		return Job{}, fmt.Errorf("%w: missing correlationId", ErrInvalidJob)
	}
	if job.RetryCount < 0 {
		return Job{}, fmt.Errorf("%w: negative retryCount", ErrInvalidJob)
	}
	return job, nil
}
