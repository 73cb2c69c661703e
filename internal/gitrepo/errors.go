package gitrepo

import "fmt"

// Typed errors enabling structured classification without string parsing upstream.

type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open repository %s: %v", e.Path, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

type BranchNotFoundError struct {
	Branch string
	Err    error
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("branch %s not found: %v", e.Branch, e.Err)
}
func (e *BranchNotFoundError) Unwrap() error { return e.Err }

type RemoteNotFoundError struct {
	Remote string
	Err    error
}

func (e *RemoteNotFoundError) Error() string {
	return fmt.Sprintf("remote %s not configured: %v", e.Remote, e.Err)
}
func (e *RemoteNotFoundError) Unwrap() error { return e.Err }

type PublishError struct {
	Branch string
	Stage  string // clone|stage|commit|push
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed during %s: %v", e.Branch, e.Stage, e.Err)
}
func (e *PublishError) Unwrap() error { return e.Err }
