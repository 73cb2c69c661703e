package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID      = "job_id"
	KeyReleaseID  = "release_id"
	KeyBuildName  = "build_name"
	KeyTarget     = "target"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyArtifact   = "artifact"
	KeyBranch     = "branch"
	KeyCommit     = "commit"
	KeyVersion    = "version"
	KeyPath       = "path"
	KeyName       = "name"
	KeyURL        = "url"
	KeyWorker     = "worker"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func ReleaseID(id string) slog.Attr   { return slog.String(KeyReleaseID, id) }
func BuildName(n string) slog.Attr    { return slog.String(KeyBuildName, n) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Artifact(a string) slog.Attr     { return slog.String(KeyArtifact, a) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Commit(c string) slog.Attr       { return slog.String(KeyCommit, c) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Worker(w string) slog.Attr       { return slog.String(KeyWorker, w) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
