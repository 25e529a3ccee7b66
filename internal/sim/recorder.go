package sim

// ControlSource exposes the locally polled control state. Poll must not
// block; it returns the current state of the controls whether or not
// anything changed since the previous poll.
type ControlSource interface {
	Poll() ActionVector
}

// ControlSourceFunc adapts a function into the ControlSource interface.
type ControlSourceFunc func() ActionVector

// Poll implements ControlSource for ControlSourceFunc.
func (f ControlSourceFunc) Poll() ActionVector {
	if f == nil {
		return ActionVector{}
	}
	return f()
}

// Recorder samples the local controls once per tick and stamps each sample
// with the frame it is for: the current frame plus the configured input
// delay, so the sample can reach remote peers before they simulate it.
type Recorder struct {
	peerID string
	source ControlSource
	delay  Frame
	last   ActionVector
}

// NewRecorder constructs a recorder for the local peer.
func NewRecorder(peerID string, source ControlSource, delay Frame) *Recorder {
	return &Recorder{peerID: peerID, source: source, delay: delay}
}

// Delay reports the configured input delay in frames.
func (r *Recorder) Delay() Frame {
	if r == nil {
		return 0
	}
	return r.delay
}

// Record produces the sample for the current tick. It is called exactly once
// per tick and never blocks; when the source reports nothing, the last
// polled state is repeated.
func (r *Recorder) Record(current Frame) InputSample {
	if r == nil {
		return InputSample{}
	}
	if r.source != nil {
		r.last = r.source.Poll()
	}
	return InputSample{
		Frame:  current + r.delay,
		PeerID: r.peerID,
		Vector: r.last,
		Origin: OriginConfirmed,
	}
}
