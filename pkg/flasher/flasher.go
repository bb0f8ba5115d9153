package flasher

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"github.com/robotalks/mtkflash/pkg/transfer"
)

// Flasher sequences the flashing of all segments over a Session.
type Flasher struct {
	Config  *Config
	Session *Session
	Sender  transfer.Sender

	strategy Strategy
	onState  StateCallback
	state    State
}

// Option is a functional option of Flasher.
type Option func(*Flasher)

// WithStateCallback reports state transitions.
func WithStateCallback(cb StateCallback) Option {
	return func(f *Flasher) {
		f.onState = cb
	}
}

// New creates a Flasher. The config must be valid.
func New(conf *Config, session *Session, sender transfer.Sender, opts ...Option) (*Flasher, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	strategy, _ := ParseStrategy(conf.Strategy)
	f := &Flasher{
		Config:   conf,
		Session:  session,
		Sender:   sender,
		strategy: strategy,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// State returns the current state.
func (f *Flasher) State() State {
	return f.state
}

// SetStrategy overrides the low baud handshake strategy.
func (f *Flasher) SetStrategy(strategy Strategy) {
	f.strategy = strategy
}

// Run flashes all segments in order and releases the hardware.
// The returned error aggregates the segment failures, the report carries
// the per segment outcomes.
func (f *Flasher) Run(ctx context.Context) (*Report, error) {
	clock := f.Session.Clock
	report := &Report{Started: clock.Now()}
	segments := f.Config.Segments()

	f.setState(ConfiguringGpio, Segment{})
	var fatal error
	if err := f.Session.Pins.Configure(); err != nil {
		fatal = err
		report.Segments = append(report.Segments, SegmentResult{
			Segment: segments[0],
			Outcome: HardwareFault,
			Phase:   ConfiguringGpio,
			Err:     &PhaseError{Segment: segments[0].Name, Phase: ConfiguringGpio, Outcome: HardwareFault, Err: err},
		})
		segments = segments[1:]
	}

	for _, seg := range segments {
		if fatal != nil {
			report.Segments = append(report.Segments, SegmentResult{Segment: seg, Outcome: Skipped, Phase: Idle, Retries: f.Session.RetryCount})
			continue
		}
		glog.Infof("flashing %s segment", seg.Name)
		res := f.FlashSegment(ctx, seg)
		report.Segments = append(report.Segments, res)
		if res.Outcome == HardwareFault || res.Outcome == Canceled {
			fatal = res.Err
		}
	}

	report.ReleaseErr = f.Release()
	report.Duration = clock.Now().Sub(report.Started)
	glog.Infof("run finished: %s in %v", report.Outcome(), report.Duration)
	return report, report.Err()
}

// Release deasserts the bootstrap line and closes the channel.
func (f *Flasher) Release() error {
	f.setState(ReleasingGpio, Segment{})
	err := f.Session.Pins.Release()
	if cerr := f.Session.Close(); err == nil {
		err = cerr
	}
	f.setState(Terminal, Segment{})
	return err
}

// FlashSegment runs the full per segment sequence for seg.
func (f *Flasher) FlashSegment(ctx context.Context, seg Segment) (res SegmentResult) {
	s, conf := f.Session, f.Config
	started := s.Clock.Now()
	res.Segment = seg
	defer func() {
		res.Retries = s.RetryCount
		res.Duration = s.Clock.Now().Sub(started)
		if res.Err != nil {
			glog.Errorf("segment %s failed: %v", seg.Name, res.Err)
		}
	}()
	fail := func(outcome Outcome, err error) SegmentResult {
		if ctx.Err() != nil {
			outcome = Canceled
		}
		res.Outcome, res.Phase = outcome, f.state
		res.Err = &PhaseError{Segment: seg.Name, Phase: f.state, Outcome: outcome, Err: err}
		return res
	}

	f.setState(EnteringBootloader, seg)
	if err := s.EnterBootloader(conf.SettleDelay); err != nil {
		return fail(HardwareFault, err)
	}
	if err := s.Channel.Open(conf.BaudRate); err != nil {
		return fail(HardwareFault, err)
	}

	f.setState(HandshakeAtLowBaud, seg)
	err := f.initHandshake().Verify(ctx, s)
	glog.Infof("init verified: %v (syncs=%d noise=%d retries=%d)", err == nil, s.SyncCount, s.ErrorCount, s.RetryCount)
	if err != nil {
		outcome := classify(err)
		if outcome != HandshakeTimeout || !conf.Optimistic {
			return fail(outcome, err)
		}
		glog.Warningf("continuing %s without handshake", seg.Name)
		res.Warnings = append(res.Warnings, err)
	}

	f.setState(LoadingDownloadAgent, seg)
	if err := f.reconfigure(conf.BaudRate); err != nil {
		return fail(HardwareFault, err)
	}
	glog.Infof("sending download agent %s", conf.DownloadAgentPath())
	err = f.Sender.Send(ctx, s.Channel, conf.DownloadAgentPath())
	glog.Infof("download agent success: %v", err == nil)
	if err != nil {
		if !conf.Optimistic || ctx.Err() != nil {
			return fail(TransferFailure, err)
		}
		glog.Warningf("continuing %s after download agent failure: %v", seg.Name, err)
		res.Warnings = append(res.Warnings, err)
	}

	f.setState(SwitchingToHighBaud, seg)
	if err := f.reconfigure(conf.HighBaudRate()); err != nil {
		return fail(HardwareFault, err)
	}
	s.Clock.Sleep(conf.SettleDelay)

	f.setState(SelectingSegment, seg)
	if err := s.Channel.WriteString(seg.Selector + "\r"); err != nil {
		return fail(HardwareFault, err)
	}
	if err := s.Channel.Flush(); err != nil {
		return fail(HardwareFault, err)
	}

	f.setState(HandshakeAtHighBaud, seg)
	if err := f.selectHandshake().Verify(ctx, s); err != nil {
		return fail(classify(err), err)
	}
	if err := s.Channel.Flush(); err != nil {
		return fail(HardwareFault, err)
	}

	f.setState(TransferringImage, seg)
	glog.Infof("sending %s", seg.Image)
	err = f.Sender.Send(ctx, s.Channel, seg.Image)
	glog.Infof("%s success: %v", seg.Image, err == nil)
	if err != nil {
		return fail(TransferFailure, err)
	}
	s.Clock.Sleep(conf.SettleDelay)
	if err := s.Channel.WriteString(string(SyncChar) + "\r"); err != nil {
		return fail(HardwareFault, err)
	}
	if err := s.Channel.Flush(); err != nil {
		return fail(HardwareFault, err)
	}

	res.Outcome, res.Phase = OK, Terminal
	return res
}

// Handshake runs the low baud handshake alone, reopening the channel first.
func (f *Flasher) Handshake(ctx context.Context) error {
	if err := f.Session.Channel.Open(f.Config.BaudRate); err != nil {
		return err
	}
	return f.initHandshake().Verify(ctx, f.Session)
}

func (f *Flasher) initHandshake() *Handshake {
	conf := f.Config
	return &Handshake{
		Strategy:    f.strategy,
		Threshold:   2,
		Timeout:     conf.HandshakeTimeout,
		ReadTimeout: conf.ReadTimeout,
		MaxRetries:  conf.MaxRetries,
		MaxNoise:    conf.MaxNoise,
		Restart: func() error {
			if err := f.Session.EnterBootloader(conf.SettleDelay); err != nil {
				return err
			}
			return f.Session.Channel.Open(conf.BaudRate)
		},
	}
}

// selectHandshake waits for the sync character confirming the selected
// segment. Noise is not counted and there is no restart: the download agent
// is already running at the high baud rate.
func (f *Flasher) selectHandshake() *Handshake {
	conf := f.Config
	return &Handshake{
		Strategy:    StrategySilence,
		Threshold:   1,
		Timeout:     conf.SelectTimeout,
		ReadTimeout: conf.ReadTimeout,
	}
}

// reconfigure makes sure the channel is open at baud.
func (f *Flasher) reconfigure(baud int) error {
	ch := f.Session.Channel
	if ch.IsOpen() && ch.Baud() == baud {
		return nil
	}
	return ch.Open(baud)
}

func (f *Flasher) setState(state State, seg Segment) {
	f.state = state
	glog.V(1).Infof("state %s %s", state, seg.Name)
	if f.onState != nil {
		f.onState(state, seg)
	}
}

func classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrHandshakeTimeout):
		return HandshakeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Canceled
	}
	return HardwareFault
}
