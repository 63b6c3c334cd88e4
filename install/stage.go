package install

// Stage is a listing's position in the install pipeline.
type Stage int

const (
	StagePending Stage = iota
	StageDownloading
	StageVerifying
	StageRetryPrompt
	StageUnpacking
	StageInstalling
	StageDone
	StageSkipped
	StageFailed
	StageCancelled
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageDownloading:
		return "downloading"
	case StageVerifying:
		return "verifying"
	case StageRetryPrompt:
		return "retry-prompt"
	case StageUnpacking:
		return "unpacking"
	case StageInstalling:
		return "installing"
	case StageDone:
		return "done"
	case StageSkipped:
		return "skipped"
	case StageFailed:
		return "failed"
	case StageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s Stage) Terminal() bool {
	return s >= StageDone
}

// Decision answers a checksum mismatch.
type Decision int

const (
	// Skip abandons the listing.
	Skip Decision = iota
	// Retry downloads the bundle again.
	Retry
	// Force installs the downloaded bundle anyway.
	Force
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Force:
		return "force"
	default:
		return "skip"
	}
}
