package mcp2518fd

// Oscillator settings. The zero value runs SYSCLK straight from the
// crystal.
type OscillatorConfig struct {
	PLL         bool // 10x PLL
	DivideByTwo bool // SCLKDIV
	ClockOutDiv ClockOutputDivisor
	SetClockOut bool // write CLKODIV, otherwise keep the reset divider
}

// IOConfig selects pin functions.
type IOConfig struct {
	TxStandbyPin     bool // XSTBYEN
	TxCANOpenDrain   bool // TXCANOD
	StartOfFrameCLKO bool // SOF
	IntPinOpenDrain  bool // INTOD
}

// NominalBitTiming holds NBTCFG values. All fields are stored minus one.
type NominalBitTiming struct {
	BRP   uint8
	TSEG1 uint8
	TSEG2 uint8
	SJW   uint8
}

// DataBitTiming holds DBTCFG values plus the delay compensation offset.
type DataBitTiming struct {
	BRP   uint8
	TSEG1 uint8
	TSEG2 uint8
	SJW   uint8
	TDCO  int8
}

// Bit timing presets for a 40 MHz SYSCLK. Use nominal and data rates with
// the same prescaler where possible.
var (
	Nominal100K = NominalBitTiming{BRP: 1, TSEG1: 158, TSEG2: 39, SJW: 39}
	Nominal125K = NominalBitTiming{BRP: 0, TSEG1: 254, TSEG2: 63, SJW: 63}
	Nominal250K = NominalBitTiming{BRP: 0, TSEG1: 126, TSEG2: 31, SJW: 31}
	Nominal500K = NominalBitTiming{BRP: 0, TSEG1: 62, TSEG2: 15, SJW: 15}
	Nominal1M   = NominalBitTiming{BRP: 0, TSEG1: 30, TSEG2: 7, SJW: 7}

	Data500K = DataBitTiming{BRP: 1, TSEG1: 30, TSEG2: 7, SJW: 7, TDCO: 62}
	Data1M   = DataBitTiming{BRP: 0, TSEG1: 30, TSEG2: 7, SJW: 7, TDCO: 31}
	Data2M   = DataBitTiming{BRP: 0, TSEG1: 14, TSEG2: 3, SJW: 3, TDCO: 15}
	Data5M   = DataBitTiming{BRP: 0, TSEG1: 4, TSEG2: 1, SJW: 1, TDCO: 5}
)

// NominalBitRate returns the preset for bps.
func NominalBitRate(bps int) (NominalBitTiming, bool) {
	switch bps {
	case 100_000:
		return Nominal100K, true
	case 125_000:
		return Nominal125K, true
	case 250_000:
		return Nominal250K, true
	case 500_000:
		return Nominal500K, true
	case 1_000_000:
		return Nominal1M, true
	}
	return NominalBitTiming{}, false
}

// DataBitRate returns the preset for bps.
func DataBitRate(bps int) (DataBitTiming, bool) {
	switch bps {
	case 500_000:
		return Data500K, true
	case 1_000_000:
		return Data1M, true
	case 2_000_000:
		return Data2M, true
	case 5_000_000:
		return Data5M, true
	}
	return DataBitTiming{}, false
}

type BitTimingConfig struct {
	Nominal NominalBitTiming
	Data    DataBitTiming
}

// TxEventFIFOConfig configures the transmit event FIFO.
type TxEventFIFOConfig struct {
	Size              uint8 // 1..32
	Timestamps        bool
	OverflowInterrupt bool
	FullInterrupt     bool
	HalfFullInterrupt bool
	NotEmptyInterrupt bool
}

func NewTxEventFIFOConfig(size uint8) TxEventFIFOConfig {
	return TxEventFIFOConfig{Size: size}
}

// TxQueueConfig configures the transmit queue.
type TxQueueConfig struct {
	Priority          uint8 // 0..31, higher wins
	Retransmission    RetransmissionAttempts
	Size              uint8
	Payload           PayloadSize
	AttemptsInterrupt bool
	EmptyInterrupt    bool
	NotFullInterrupt  bool
}

// NewTxQueueConfig returns a queue with unlimited retransmissions.
func NewTxQueueConfig(priority, size uint8, payload PayloadSize) TxQueueConfig {
	return TxQueueConfig{Priority: priority, Retransmission: RetransmitUnlimited, Size: size, Payload: payload}
}

// TxFIFOConfig holds the transmit specific FIFO settings.
type TxFIFOConfig struct {
	Priority           uint8
	Retransmission     RetransmissionAttempts
	AutoRTR            bool
	AttemptsInterrupt  bool
	EmptyInterrupt     bool
	HalfEmptyInterrupt bool
	NotFullInterrupt   bool
}

func NewTxFIFOConfig(priority uint8) TxFIFOConfig {
	return TxFIFOConfig{Priority: priority, Retransmission: RetransmitUnlimited}
}

// RxFIFOConfig holds the receive specific FIFO settings.
type RxFIFOConfig struct {
	Timestamps        bool
	OverflowInterrupt bool
	FullInterrupt     bool
	HalfFullInterrupt bool
	NotEmptyInterrupt bool
}

// FIFODirection is the direction of a general purpose FIFO.
type FIFODirection uint8

const (
	FIFOReceive FIFODirection = iota
	FIFOTransmit
)

func (d FIFODirection) String() string {
	if d == FIFOTransmit {
		return "tx"
	}
	return "rx"
}

// FIFOConfig configures one general purpose FIFO. Only the sub-config
// matching Direction is used.
type FIFOConfig struct {
	Size      uint8
	Payload   PayloadSize
	Direction FIFODirection
	TX        TxFIFOConfig
	RX        RxFIFOConfig
}

func NewTxFIFO(size uint8, payload PayloadSize, tx TxFIFOConfig) FIFOConfig {
	return FIFOConfig{Size: size, Payload: payload, Direction: FIFOTransmit, TX: tx}
}

func NewRxFIFO(size uint8, payload PayloadSize, rx RxFIFOConfig) FIFOConfig {
	return FIFOConfig{Size: size, Payload: payload, Direction: FIFOReceive, RX: rx}
}

// FilterMatchMode restricts which identifier kinds a filter accepts.
type FilterMatchMode uint8

const (
	MatchStandardOnly FilterMatchMode = iota
	MatchExtendedOnly
	MatchBoth
)

// FilterConfig routes messages matching ID under Mask into FIFO.
type FilterConfig struct {
	FIFO FIFO
	Mode FilterMatchMode
	ID   ID
	Mask ID
}

// Settings is everything Configure writes.
type Settings struct {
	Oscillator OscillatorConfig
	IO         IOConfig
	BitTiming  BitTimingConfig

	TxEventFIFO *TxEventFIFOConfig // nil disables the TEF
	TxQueue     *TxQueueConfig     // nil disables the TXQ

	TimeBaseCounter bool
	DataBitsToMatch *DataBits // nil leaves DNCNT alone

	CANErrorInterrupts bool
	SPIErrorInterrupt  bool
	ECCErrorInterrupt  bool
}
