package domain

import (
	"errors"
	"fmt"
	"time"
)

// BuildState is a position in the bootstrap lifecycle.
type BuildState string

const (
	StateImageBuilding     BuildState = "image-building"
	StateBuilt             BuildState = "built"
	StateContainerStarting BuildState = "container-starting"
	StateRunning           BuildState = "running"
	StateFailed            BuildState = "failed"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrBuildNotFound     = errors.New("build not found")
)

// transitions is the linear lifecycle. Every non-terminal state may fail.
var transitions = map[BuildState][]BuildState{
	StateImageBuilding:     {StateBuilt, StateFailed},
	StateBuilt:             {StateContainerStarting, StateFailed},
	StateContainerStarting: {StateRunning, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s BuildState) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to BuildState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Source is where the build context comes from. Exactly one field is set.
type Source struct {
	RepoURL string `json:"repo_url,omitempty"`
	Dir     string `json:"dir,omitempty"`
}

func (s Source) Validate() error {
	switch {
	case s.RepoURL != "" && s.Dir != "":
		return errors.New("source must be either a repository URL or a directory, not both")
	case s.RepoURL == "" && s.Dir == "":
		return errors.New("source repository URL or directory is required")
	}
	return nil
}

func (s Source) String() string {
	if s.RepoURL != "" {
		return s.RepoURL
	}
	return s.Dir
}

// Layer is one cacheable step of a build and the key that decides reuse.
type Layer struct {
	Step string `json:"step"`
	Key  string `json:"key"`
}

// Build tracks one pass through the bootstrap lifecycle.
type Build struct {
	ID           string        `json:"id"`
	Recipe       string        `json:"recipe"`
	Source       Source        `json:"source"`
	Image        string        `json:"image"`
	ImageID      string        `json:"image_id,omitempty"`
	Port         int           `json:"port"`
	PortEnv      string        `json:"port_env,omitempty"`
	State        BuildState    `json:"state"`
	Requirements []Requirement `json:"requirements,omitempty"`
	Layers       []Layer       `json:"layers,omitempty"`
	ContainerID  string        `json:"container_id,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Transition moves the build to next, stamping UpdatedAt.
func (b *Build) Transition(next BuildState, at time.Time) error {
	if !CanTransition(b.State, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.State, next)
	}
	b.State = next
	b.UpdatedAt = at
	return nil
}

// Fail moves the build to the failed terminal state and records cause.
func (b *Build) Fail(cause error, at time.Time) error {
	if err := b.Transition(StateFailed, at); err != nil {
		return err
	}
	b.Error = cause.Error()
	return nil
}

// BuildError is a failed image build with the tail of its output.
type BuildError struct {
	Image  string
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build of %s failed: %v", e.Image, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// StartError is a container that did not reach the running state.
type StartError struct {
	ContainerID string
	ExitCode    int
	Output      string
	Err         error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("container %s failed to start: %v", ShortID(e.ContainerID), e.Err)
	}
	return fmt.Sprintf("container %s exited with code %d", ShortID(e.ContainerID), e.ExitCode)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ShortID truncates a runtime identifier to the conventional 12 characters.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
