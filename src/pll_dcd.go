package viperwolf

/*-------------------------------------------------------------------
 *
 * Purpose:     Recover the symbol clock from the demodulator output
 *		and decide when each bit should be sampled.
 *
 * Description:	There is no clock sent along with the data so we
 *		run our own free running counter at about the right
 *		rate and nudge it whenever the demodulator output
 *		changes sign.  Ideally the transitions land where the
 *		counter passes through zero and we sample midway
 *		between them, where the counter overflows.
 *
 *		The same transition timing tells us whether we are
 *		locked on to a real signal.  That becomes the data
 *		carrier detect (DCD) indication.
 *
 *--------------------------------------------------------------------*/

import (
	"math/bits"
)

// DCDConfig tunes lock detection.
type DCDConfig struct {
	// Number of the last 32 symbols that must look good to declare lock.
	ThreshOn int

	// Drop lock when this few or fewer look good.
	ThreshOff int

	// How close to the expected spot, in units of 2^20 PLL ticks,
	// a transition must be to count as good.  No more than 1024!!!
	GoodWidth int
}

// These values are good for 1200 bps AFSK.
// Might want to override for other modems.
func GenericDCDConfig() DCDConfig {
	return DCDConfig{
		// Hysteresis: Can miss 2 out of 32 for detecting lock.
		ThreshOn:  30,
		ThreshOff: 6, // Might want a little more fine tuning.
		GoodWidth: 512,
	}
}

// PLL is the clock recovery state for one channel.
type PLL struct {
	stepPerSample    int32
	lockedInertia    float64
	searchingInertia float64
	dcd              DCDConfig

	// Signed 32 bit counter.  When it overflows from a large positive
	// value to a negative value, we sample a data bit.
	dataClockPLL int32

	prevDemodData bool

	// True when PLL is locked to incoming signal.
	dataDetect bool

	goodFlag bool
	badFlag  bool
	goodHist uint8
	badHist  uint8
	score    uint32

	onDCDChange func(bool)

	// For measuring how far off the transmitter's clock is.
	nudgeTotal  int64
	symbolCount int64
}

// NewPLL takes the step size and inertia worked out for a demodulator.
func NewPLL(D *DemodulatorState) *PLL {
	return NewPLLWithParams(D.pllStepPerSample, D.pllLockedInertia, D.pllSearchingInertia, GenericDCDConfig())
}

func NewPLLWithParams(step int32, lockedInertia, searchingInertia float64, dcd DCDConfig) *PLL {
	return &PLL{ //nolint:exhaustruct
		stepPerSample:    step,
		lockedInertia:    lockedInertia,
		searchingInertia: searchingInertia,
		dcd:              dcd,
	}
}

// OnDCDChange registers a function called whenever lock is gained or lost.
// It runs on the sample processing goroutine so it should be quick.
func (p *PLL) OnDCDChange(fn func(bool)) {
	p.onDCDChange = fn
}

// DataDetect reports whether we currently believe we are locked on to a signal.
func (p *PLL) DataDetect() bool {
	return p.dataDetect
}

// Phase is the current counter value, mostly useful for testing.
func (p *PLL) Phase() int32 {
	return p.dataClockPLL
}

// SpeedError is the estimated transmit clock error in percent, since lock
// was gained or the last reset.  Positive means the transmitter is fast.
func (p *PLL) SpeedError() float64 {
	if p.symbolCount <= 0 {
		return 0
	}

	return float64(p.nudgeTotal) * 100. / TicksPerPLLCycle / float64(p.symbolCount)
}

// ResetSpeedError starts a new measurement, e.g. at the start of a frame.
func (p *PLL) ResetSpeedError() {
	p.nudgeTotal = 0
	p.symbolCount = 0
}

/*-------------------------------------------------------------------
 *
 * Name:        OnDemodSample
 *
 * Purpose:     Advance the clock by one audio sample.
 *
 * Inputs:	demodOut	- Demodulator output for this sample.
 *
 * Returns:	bit	- Data bit, true for mark.
 *		ok	- True if this sample is a recovered symbol center
 *			  and bit is meaningful.
 *
 * Description:	Nudge the PLL by removing some small fraction from the value of
 *		dataClockPLL, pushing it closer to zero.
 *
 *		This adjustment will never change the sign so it won't cause
 *		any erratic data bit sampling.
 *
 *		If we adjust it too quickly, the clock will have too much jitter.
 *		If we adjust it too slowly, it will take too long to lock on to a new signal.
 *
 *		Be a little more aggressive about adjusting the PLL
 *		phase when searching for a signal.  Don't change it as much when
 *		locked on to a signal.
 *
 *--------------------------------------------------------------------*/

func (p *PLL) OnDemodSample(demodOut float64) (bool, bool) {
	var prev = p.dataClockPLL

	// Perform the add as unsigned to avoid signed overflow.
	p.dataClockPLL = int32(uint32(p.dataClockPLL) + uint32(p.stepPerSample))

	var bit, ok bool

	if prev >= 0 && p.dataClockPLL < 0 {
		/* Overflow - this is where we sample. */
		bit = demodOut > 0
		ok = true

		p.symbolCount++
		p.eachSymbol()
	}

	// Transitions nudge the DPLL phase toward the incoming signal.

	var demodData = demodOut > 0
	if demodData != p.prevDemodData {
		p.signalTransition(p.dataClockPLL)

		var before = p.dataClockPLL
		if p.dataDetect {
			p.dataClockPLL = int32(float64(p.dataClockPLL) * p.lockedInertia)
		} else {
			p.dataClockPLL = int32(float64(p.dataClockPLL) * p.searchingInertia)
		}
		p.nudgeTotal += int64(p.dataClockPLL) - int64(before)
	}

	/*
	 * Remember demodulator output so we can compare next time.
	 */
	p.prevDemodData = demodData

	return bit, ok
}

/*-------------------------------------------------------------------
 *
 * Name:        signalTransition
 *		eachSymbol
 *
 * Purpose:     Keep a running score of how well demodulator
 *		output transitions match to where expected.
 *
 * Inputs:	dpllPhase	Signed 32 bit counter for DPLL phase.
 *				Wraparound is where data is sampled.
 *				Ideally transitions would occur close to 0.
 *
 * Description:	A symbol with good transitions and no bad ones, twice
 *		in the last 8, scores a point.  Lock is declared when most
 *		of the last 32 symbols scored.
 *
 *--------------------------------------------------------------------*/

func (p *PLL) signalTransition(dpllPhase int32) {
	var width = int64(p.dcd.GoodWidth) * 1024 * 1024
	if int64(dpllPhase) > -width && int64(dpllPhase) < width {
		p.goodFlag = true
	} else {
		p.badFlag = true
	}
}

func (p *PLL) eachSymbol() {
	p.goodHist <<= 1
	if p.goodFlag {
		p.goodHist |= 1
	}
	p.goodFlag = false

	p.badHist <<= 1
	if p.badFlag {
		p.badHist |= 1
	}
	p.badFlag = false

	p.score <<= 1
	// 2 is to detect 'flag' patterns with 2 transitions per octet.
	var goodBits = bits.OnesCount8(p.goodHist)
	var badBits = bits.OnesCount8(p.badHist)
	if goodBits-badBits >= 2 {
		p.score |= 1
	}

	var s = bits.OnesCount32(p.score)
	if s >= p.dcd.ThreshOn {
		if !p.dataDetect {
			p.dataDetect = true
			p.ResetSpeedError()
			p.dcdChanged()
		}
	} else if s <= p.dcd.ThreshOff {
		if p.dataDetect {
			p.dataDetect = false
			p.dcdChanged()
		}
	}
}

func (p *PLL) dcdChanged() {
	if p.onDCDChange != nil {
		p.onDCDChange(p.dataDetect)
	}
}
