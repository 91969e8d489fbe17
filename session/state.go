package session

// State 一次交互中流水线所处的阶段
type State int

const (
	StateIdle State = iota
	StateValidating
	StateExtracting
	StateFiltering
	StateCompositing
	StateEncoding
	StateReady
	StateFailed
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateValidating:  "validating",
	StateExtracting:  "extracting",
	StateFiltering:   "filtering",
	StateCompositing: "compositing",
	StateEncoding:    "encoding",
	StateReady:       "ready",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal Ready 和 Failed 之后不再转移，重新开始需要新的上传
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}
