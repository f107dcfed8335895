package failover

// Phase is the client-side view of a failover episode's lifecycle. The server
// is the only origin of transitions; the client maps whatever it reports.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDetecting
	PhaseGPULost
	PhaseFailoverToCPU
	PhaseSearchingGPU
	PhaseProvisioning
	PhaseRestoring
	PhaseComplete
	PhaseFailed
	// PhaseUnknown covers phase values this client predates. The raw server
	// string is kept alongside in State.RawPhase.
	PhaseUnknown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseDetecting:
		return "DETECTING"
	case PhaseGPULost:
		return "GPU_LOST"
	case PhaseFailoverToCPU:
		return "FAILOVER_TO_CPU"
	case PhaseSearchingGPU:
		return "SEARCHING_GPU"
	case PhaseProvisioning:
		return "PROVISIONING"
	case PhaseRestoring:
		return "RESTORING"
	case PhaseComplete:
		return "COMPLETE"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParsePhase maps a server-reported phase string to a Phase. Unrecognized
// values map to PhaseUnknown, never an error.
func ParsePhase(s string) Phase {
	switch s {
	case "detecting":
		return PhaseDetecting
	case "gpu_lost":
		return PhaseGPULost
	case "failover_to_cpu":
		return PhaseFailoverToCPU
	case "searching_gpu":
		return PhaseSearchingGPU
	case "provisioning":
		return PhaseProvisioning
	case "restoring":
		return PhaseRestoring
	case "complete":
		return PhaseComplete
	case "failed":
		return PhaseFailed
	case "":
		return PhaseIdle
	default:
		return PhaseUnknown
	}
}

// Terminal reports whether the phase ends the episode.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Presentation describes how a phase is rendered.
type Presentation struct {
	Title    string
	Detail   string
	Failed   bool // alert styling, no spinner
	Animated bool // show progress spinner
}

// Presentation returns the view for a phase. Unknown phases get the generic
// processing view so new server-side phases never break the client.
func (p Phase) Presentation() Presentation {
	switch p {
	case PhaseDetecting:
		return Presentation{Title: "Detecting interruption", Detail: "Checking GPU health", Animated: true}
	case PhaseGPULost:
		return Presentation{Title: "GPU lost", Detail: "Hardware interruption confirmed", Animated: true}
	case PhaseFailoverToCPU:
		return Presentation{Title: "Failing over to CPU", Detail: "Workload moving to CPU standby", Animated: true}
	case PhaseSearchingGPU:
		return Presentation{Title: "Searching for GPU", Detail: "Looking for a replacement GPU", Animated: true}
	case PhaseProvisioning:
		return Presentation{Title: "Provisioning", Detail: "Setting up replacement GPU", Animated: true}
	case PhaseRestoring:
		return Presentation{Title: "Restoring", Detail: "Moving workload back to GPU", Animated: true}
	case PhaseComplete:
		return Presentation{Title: "Failover complete", Detail: "Workload restored on replacement GPU"}
	case PhaseFailed:
		return Presentation{Title: "Failover failed", Detail: "Automatic recovery did not succeed", Failed: true}
	default:
		return Presentation{Title: "Processing", Detail: "Failover in progress", Animated: true}
	}
}
