package mcp2518fd

import (
	"fmt"
	"time"
)

const (
	pollInterval     = 500 * time.Microsecond
	opModeAttempts   = 5
	pllReadyAttempts = 3
)

// Configure brings the chip from any mode into Configuration mode and
// applies s. It stops at the first failing step and does not undo the
// earlier ones; the chip is left in Configuration mode.
func (d *Device) Configure(s Settings) error {
	if err := d.SetOpMode(ModeConfiguration); err != nil {
		return &ConfigError{Step: "op-mode", Err: fmt.Errorf("%w: %w", ErrConfigurationModeTimeout, err)}
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"spi-echo", d.VerifySPICommunications},
		{"oscillator", func() error { return d.configureOscillator(s.Oscillator) }},
		{"io", func() error { return d.configureIO(s.IO) }},
		{"bit-timing", func() error { return d.configureBitTiming(s.BitTiming) }},
		{"tef", func() error { return d.configureTxEventFIFO(s.TxEventFIFO) }},
		{"txq", func() error { return d.configureTxQueue(s.TxQueue) }},
		{"time-base", func() error { return d.configureTimeBase(s.TimeBaseCounter) }},
		{"dncnt", func() error { return d.configureDataBits(s.DataBitsToMatch) }},
		{"interrupts", func() error { return d.configureInterrupts(s) }},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			return &ConfigError{Step: st.name, Err: err}
		}
	}
	return nil
}

// OpMode returns the current operating mode.
func (d *Device) OpMode() (OperationMode, error) {
	con, err := ReadRegister[CiCON](d)
	if err != nil {
		return ModeUnknown, err
	}
	return con.OPMOD(), nil
}

// SetOpMode requests m and polls OPMOD until the chip reports it.
func (d *Device) SetOpMode(m OperationMode) error {
	err := ModifyRegister(d, func(r CiCON) CiCON {
		r.SetREQOP(m)
		return r
	})
	if err != nil {
		return err
	}
	for i := 0; i < opModeAttempts; i++ {
		cur, err := d.OpMode()
		if err != nil {
			return err
		}
		if cur == m {
			return nil
		}
		if i < opModeAttempts-1 {
			d.sleep(pollInterval)
		}
	}
	return ErrChangeOpModeTimeout
}

func (d *Device) configureOscillator(c OscillatorConfig) error {
	err := ModifyRegister(d, func(r OSC) OSC {
		r.SetPLLEN(c.PLL)
		r.SetSCLKDIV(c.DivideByTwo)
		r.SetOSCDIS(false)
		if c.SetClockOut {
			r.SetCLKODIV(c.ClockOutDiv)
		}
		return r
	})
	if err != nil || !c.PLL {
		return err
	}
	for i := 0; i < pllReadyAttempts; i++ {
		osc, err := ReadRegister[OSC](d)
		if err != nil {
			return err
		}
		if osc.PLLRDY() {
			return nil
		}
		if i < pllReadyAttempts-1 {
			d.sleep(pollInterval)
		}
	}
	return ErrPLLNotReady
}

func (d *Device) configureIO(c IOConfig) error {
	return ModifyRegister(d, func(r IOCON) IOCON {
		r.SetXSTBYEN(c.TxStandbyPin)
		r.SetTXCANOD(c.TxCANOpenDrain)
		r.SetSOF(c.StartOfFrameCLKO)
		r.SetINTOD(c.IntPinOpenDrain)
		return r
	})
}

func (d *Device) configureBitTiming(c BitTimingConfig) error {
	err := ModifyRegister(d, func(r NBTCFG) NBTCFG {
		r.SetBRP(c.Nominal.BRP)
		r.SetTSEG1(c.Nominal.TSEG1)
		r.SetTSEG2(c.Nominal.TSEG2)
		r.SetSJW(c.Nominal.SJW)
		return r
	})
	if err != nil {
		return err
	}
	err = ModifyRegister(d, func(r DBTCFG) DBTCFG {
		r.SetBRP(c.Data.BRP)
		r.SetTSEG1(c.Data.TSEG1)
		r.SetTSEG2(c.Data.TSEG2)
		r.SetSJW(c.Data.SJW)
		return r
	})
	if err != nil {
		return err
	}
	return ModifyRegister(d, func(r TDC) TDC {
		r.SetTDCMOD(TDCAutomatic)
		r.SetTDCO(c.Data.TDCO)
		r.SetTDCV(0)
		return r
	})
}

func (d *Device) configureTxEventFIFO(c *TxEventFIFOConfig) error {
	err := ModifyRegister(d, func(r CiCON) CiCON {
		r.SetSTEF(c != nil)
		return r
	})
	if err != nil || c == nil {
		return err
	}
	return ModifyRegister(d, func(r TEFCON) TEFCON {
		r.SetFSIZE(c.Size)
		r.SetTEFTSEN(c.Timestamps)
		r.SetTEFOVIE(c.OverflowInterrupt)
		r.SetTEFFIE(c.FullInterrupt)
		r.SetTEFHIE(c.HalfFullInterrupt)
		r.SetTEFNEIE(c.NotEmptyInterrupt)
		return r
	})
}

func (d *Device) configureTxQueue(c *TxQueueConfig) error {
	err := ModifyRegister(d, func(r CiCON) CiCON {
		r.SetTXQEN(c != nil)
		return r
	})
	if err != nil || c == nil {
		return err
	}
	return ModifyRegister(d, func(r TXQCON) TXQCON {
		r.SetTXAT(c.Retransmission)
		r.SetTXPRI(c.Priority)
		r.SetFSIZE(c.Size)
		r.SetPLSIZE(c.Payload)
		r.SetTXATIE(c.AttemptsInterrupt)
		r.SetTXQEIE(c.EmptyInterrupt)
		r.SetTXQNIE(c.NotFullInterrupt)
		return r
	})
}

func (d *Device) configureTimeBase(enable bool) error {
	if !enable {
		return nil
	}
	return ModifyRegister(d, func(r TSCON) TSCON {
		r.SetTBCEN(true)
		return r
	})
}

func (d *Device) configureDataBits(n *DataBits) error {
	if n == nil {
		return nil
	}
	if *n > MaxDataBits {
		return fmt.Errorf("%w: dncnt %d", ErrInvalidIndex, *n)
	}
	return ModifyRegister(d, func(r CiCON) CiCON {
		r.SetDNCNT(*n)
		return r
	})
}

func (d *Device) configureInterrupts(s Settings) error {
	err := ModifyRegister(d, func(r CiCON) CiCON {
		r.SetRTXAT(true)
		return r
	})
	if err != nil {
		return err
	}
	return ModifyRegister(d, func(r INT) INT {
		r.SetRXIE(true)
		r.SetTXIE(true)
		if s.CANErrorInterrupts {
			r.SetIVMIE(true)
			r.SetCERRIE(true)
			r.SetSERRIE(true)
		}
		if s.SPIErrorInterrupt {
			r.SetSPICRCIE(true)
		}
		if s.ECCErrorInterrupt {
			r.SetECCIE(true)
		}
		if s.TimeBaseCounter {
			r.SetTBCIE(true)
		}
		return r
	})
}

// ConfigureFIFO sets up general purpose FIFO f. The chip must be in
// Configuration mode.
func (d *Device) ConfigureFIFO(f FIFO, c FIFOConfig) error {
	return ModifyRepeated(d, f, func(r FIFOCON) FIFOCON {
		r.SetFSIZE(c.Size)
		r.SetPLSIZE(c.Payload)
		if c.Direction == FIFOTransmit {
			r.SetTXEN(true)
			r.SetTXPRI(c.TX.Priority)
			r.SetTXAT(c.TX.Retransmission)
			r.SetRTREN(c.TX.AutoRTR)
			r.SetTXATIE(c.TX.AttemptsInterrupt)
			r.SetTFERFFIE(c.TX.EmptyInterrupt)
			r.SetTFHRFHIE(c.TX.HalfEmptyInterrupt)
			r.SetTFNRFNIE(c.TX.NotFullInterrupt)
			return r
		}
		r.SetTXEN(false)
		r.SetRXTSEN(c.RX.Timestamps)
		r.SetRXOVIE(c.RX.OverflowInterrupt)
		r.SetTFERFFIE(c.RX.FullInterrupt)
		r.SetTFHRFHIE(c.RX.HalfFullInterrupt)
		r.SetTFNRFNIE(c.RX.NotEmptyInterrupt)
		return r
	})
}

// DeviceID reads the silicon identification.
func (d *Device) DeviceID() (DEVID, error) { return ReadRegister[DEVID](d) }

// ErrorCounters reads TREC.
func (d *Device) ErrorCounters() (TREC, error) { return ReadRegister[TREC](d) }

// Diagnostics reads both bus diagnostic registers.
func (d *Device) Diagnostics() (BDIAG0, BDIAG1, error) {
	b0, err := ReadRegister[BDIAG0](d)
	if err != nil {
		return 0, 0, err
	}
	b1, err := ReadRegister[BDIAG1](d)
	return b0, b1, err
}

// TimeBase reads the time base counter.
func (d *Device) TimeBase() (uint32, error) {
	v, err := ReadRegister[TBC](d)
	return uint32(v), err
}
