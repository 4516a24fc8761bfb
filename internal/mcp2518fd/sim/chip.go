// Package sim emulates an MCP2518FD behind the mcp2518fd.Bus interface.
//
// The model covers what the driver and the gateway touch: the SFR file,
// message RAM with the FIFO layout the chip derives from its control
// registers, user address pointers, the acceptance filters and loopback
// delivery. Bit timing, error confinement and ECC are stored but have no
// effect.
package sim

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
)

var (
	ErrNotReceiving = errors.New("sim: controller not receiving in current mode")
	ErrNoFilter     = errors.New("sim: no enabled filter matches")
	ErrOverflow     = errors.New("sim: receive fifo full")
	ErrBadTransfer  = errors.New("sim: malformed transfer")
)

// Reset values of the registers the model cares about.
const (
	resetOSC     = 0x00000460
	resetIOCON   = 0x03000003
	resetNBTCFG  = 0x003E0F0F
	resetDBTCFG  = 0x000E0303
	resetTDC     = 0x00021000
	resetTXQCON  = 0x00600080
	resetFIFOCON = 0x00600000
	resetDEVID   = 0x00000014
)

const (
	tefIndex   = 32 // queue slot of the TEF; 0 is the TXQ, 1..31 the FIFOs
	maxLogged  = 1024
	ramStart   = mcp2518fd.RAMStart
	ramEnd     = mcp2518fd.RAMEnd
	intFlagsRO = 1<<0 | 1<<1 | 1<<4 | 1<<8 | 1<<9 | 1<<10 | 1<<11
)

// Op is one decoded SPI transaction, kept for assertions in tests.
type Op struct {
	Opcode mcp2518fd.Opcode
	Addr   uint16
	Data   []byte // bytes written, or returned for reads
}

type queue struct {
	base  int // offset into RAM
	depth int
	elem  int
	tx    bool
	head  int
	tail  int
	count int
	ovf   bool
	req   bool
}

func (q *queue) ua() uint32 {
	if q.tx {
		return uint32(q.base + q.head*q.elem)
	}
	return uint32(q.base + q.tail*q.elem)
}

func (q *queue) full() bool  { return q.count >= q.depth }
func (q *queue) empty() bool { return q.count == 0 }
func (q *queue) half() bool  { return q.depth > 0 && q.count*2 >= q.depth }

// Chip is a simulated controller. It is safe for concurrent use.
type Chip struct {
	// Set before first use.
	StuckMode     bool                           // REQOP never reaches OPMOD
	PLLNeverReady bool                           // PLLRDY stays clear
	ReadHook      func(addr uint16, data []byte) // may alter read data

	mu       sync.Mutex
	reg      map[uint16]uint32
	ram      [mcp2518fd.RAMSize]byte
	q        [tefIndex + 1]queue
	tbc      uint32
	readErr  error
	writeErr error
	ops      []Op
	sent     []can.Frame
	notify   chan struct{}
}

// New returns a chip in its reset state.
func New() *Chip {
	c := &Chip{notify: make(chan struct{}, 1)}
	c.reset()
	return c
}

func (c *Chip) reset() {
	c.reg = map[uint16]uint32{
		mcp2518fd.AddrCiCON:  uint32(mcp2518fd.CiCONReset),
		mcp2518fd.AddrOSC:    resetOSC,
		mcp2518fd.AddrIOCON:  resetIOCON,
		mcp2518fd.AddrNBTCFG: resetNBTCFG,
		mcp2518fd.AddrDBTCFG: resetDBTCFG,
		mcp2518fd.AddrTDC:    resetTDC,
		mcp2518fd.AddrTXQCON: resetTXQCON,
		mcp2518fd.AddrDEVID:  resetDEVID,
	}
	for n := 1; n <= 31; n++ {
		c.reg[fifoAddr(n)] = resetFIFOCON
	}
	c.q = [tefIndex + 1]queue{}
	c.tbc = 0
}

// FailReads makes every following read fail with err; nil restores.
func (c *Chip) FailReads(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// FailWrites makes every following write (and RESET) fail with err.
func (c *Chip) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// Ops returns the transactions seen so far.
func (c *Chip) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Op(nil), c.ops...)
}

// ClearOps forgets the recorded transactions.
func (c *Chip) ClearOps() {
	c.mu.Lock()
	c.ops = nil
	c.mu.Unlock()
}

// Register returns the raw stored value of an SFR.
func (c *Chip) Register(addr uint16) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readSFR(addr)
}

// SetRegister stores v without side effects, for TREC/BDIAG style
// registers the model never changes on its own.
func (c *Chip) SetRegister(addr uint16, v uint32) {
	c.mu.Lock()
	c.reg[addr&^3] = v
	c.mu.Unlock()
}

// Transmitted returns the frames sent in a normal (non loopback) mode,
// oldest first.
func (c *Chip) Transmitted() []can.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]can.Frame(nil), c.sent...)
}

// Wait blocks until a frame is received or transmitted, or timeout passes.
// It mirrors the INT line of a real board.
func (c *Chip) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.notify:
		return true
	case <-t.C:
		return false
	}
}

func (c *Chip) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Transact implements mcp2518fd.Bus.
func (c *Chip) Transact(segs ...mcp2518fd.Segment) error {
	if len(segs) == 0 || len(segs[0].Write) < 2 {
		return ErrBadTransfer
	}
	op, addr := mcp2518fd.DecodeInstruction([2]byte{segs[0].Write[0], segs[0].Write[1]})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick()

	switch op {
	case mcp2518fd.OpReset:
		if c.writeErr != nil {
			return c.writeErr
		}
		c.ops = append(c.ops, Op{Opcode: op})
		c.reset()
		return nil
	case mcp2518fd.OpRead:
		if c.readErr != nil {
			return c.readErr
		}
		if len(segs) != 2 || segs[1].Read == nil {
			return ErrBadTransfer
		}
		buf := segs[1].Read
		c.readBytes(addr, buf)
		if c.ReadHook != nil {
			c.ReadHook(addr, buf)
		}
		c.ops = append(c.ops, Op{Opcode: op, Addr: addr, Data: append([]byte(nil), buf...)})
		return nil
	case mcp2518fd.OpWrite:
		if c.writeErr != nil {
			return c.writeErr
		}
		data := segs[0].Write[2:]
		if len(segs) > 1 {
			data = append(append([]byte(nil), data...), segs[1].Write...)
		}
		c.ops = append(c.ops, Op{Opcode: op, Addr: addr, Data: append([]byte(nil), data...)})
		c.writeBytes(addr, data)
		return nil
	}
	return ErrBadTransfer
}

func (c *Chip) tick() {
	if bit(c.reg[mcp2518fd.AddrTSCON], 16) {
		c.tbc++
	}
}

func isRAM(a uint16) bool { return a >= ramStart && a <= ramEnd }

func (c *Chip) readBytes(addr uint16, buf []byte) {
	for i := range buf {
		a := (addr + uint16(i)) & 0xFFF
		if isRAM(a) {
			buf[i] = c.ram[a-ramStart]
			continue
		}
		buf[i] = byte(c.readSFR(a&^3) >> (8 * (a & 3)))
	}
}

func (c *Chip) writeBytes(addr uint16, data []byte) {
	for i := 0; i < len(data); {
		a := (addr + uint16(i)) & 0xFFF
		if isRAM(a) {
			c.ram[a-ramStart] = data[i]
			i++
			continue
		}
		w := a &^ 3
		v := c.reg[w]
		for ; i < len(data) && ((addr+uint16(i))&0xFFF)&^3 == w; i++ {
			sh := 8 * ((addr + uint16(i)) & 3)
			v = v&^(0xFF<<sh) | uint32(data[i])<<sh
		}
		c.writeSFR(w, v)
	}
}

func bit(v uint32, n uint) bool { return v>>n&1 != 0 }

func setBit(v uint32, n uint, b bool) uint32 {
	if b {
		return v | 1<<n
	}
	return v &^ (1 << n)
}

func fifoAddr(n int) uint16 { return mcp2518fd.AddrFIFOCON + uint16(12*(n-1)) }

// queueReg maps a TEF, TXQ or FIFO register address to its queue slot and
// register kind (0 control, 4 status, 8 user address).
func queueReg(a uint16) (int, uint16, bool) {
	switch {
	case a >= mcp2518fd.AddrTEFCON && a <= mcp2518fd.AddrTEFUA:
		return tefIndex, a - mcp2518fd.AddrTEFCON, true
	case a >= mcp2518fd.AddrTXQCON && a <= mcp2518fd.AddrTXQUA:
		return 0, a - mcp2518fd.AddrTXQCON, true
	case a >= mcp2518fd.AddrFIFOCON && a < mcp2518fd.AddrFLTCON:
		off := a - mcp2518fd.AddrFIFOCON
		return int(off/12) + 1, off % 12, true
	}
	return 0, 0, false
}

func (c *Chip) mode() mcp2518fd.OperationMode {
	return mcp2518fd.CiCON(c.reg[mcp2518fd.AddrCiCON]).OPMOD()
}

func (c *Chip) readSFR(a uint16) uint32 {
	if n, kind, ok := queueReg(a); ok {
		q := &c.q[n]
		switch kind {
		case 0:
			return c.reg[a]
		case 4:
			return c.status(n, q)
		case 8:
			return q.ua()
		}
	}
	switch a {
	case mcp2518fd.AddrOSC:
		v := c.reg[a]
		v = setBit(v, 8, bit(v, 0) && !c.PLLNeverReady)
		v = setBit(v, 10, !bit(v, 2))
		v = setBit(v, 12, true)
		return v
	case mcp2518fd.AddrTBC:
		return c.tbc
	case mcp2518fd.AddrVEC:
		return c.vec()
	case mcp2518fd.AddrINT:
		return c.intReg()
	case mcp2518fd.AddrRXIF:
		return c.rxif()
	case mcp2518fd.AddrTXIF:
		return c.txif()
	case mcp2518fd.AddrRXOVIF:
		var v uint32
		for n := 1; n <= 31; n++ {
			v = setBit(v, uint(n), !c.q[n].tx && c.q[n].ovf)
		}
		return v
	case mcp2518fd.AddrTXREQ:
		var v uint32
		for n := 0; n <= 31; n++ {
			v = setBit(v, uint(n), c.q[n].req && c.q[n].count > 0)
		}
		return v
	}
	return c.reg[a]
}

func (c *Chip) status(n int, q *queue) uint32 {
	var v uint32
	switch {
	case n == tefIndex:
		v = setBit(v, 0, !q.empty())
		v = setBit(v, 1, q.half())
		v = setBit(v, 2, q.depth > 0 && q.full())
		v = setBit(v, 3, q.ovf)
		return v
	case q.tx:
		v = setBit(v, 0, q.depth > 0 && !q.full())
		v = setBit(v, 1, q.depth > 0 && q.count*2 <= q.depth)
		v = setBit(v, 2, q.depth > 0 && q.empty())
		v |= uint32(q.head) << 8
	default:
		v = setBit(v, 0, !q.empty())
		v = setBit(v, 1, q.half())
		v = setBit(v, 2, q.depth > 0 && q.full())
		v = setBit(v, 3, q.ovf)
		v |= uint32(q.tail) << 8
	}
	return v
}

func (c *Chip) rxif() uint32 {
	var v uint32
	for n := 1; n <= 31; n++ {
		q := &c.q[n]
		if q.tx || q.depth == 0 {
			continue
		}
		con := c.reg[fifoAddr(n)]
		hit := (bit(con, 0) && !q.empty()) || (bit(con, 1) && q.half()) || (bit(con, 2) && q.full())
		v = setBit(v, uint(n), hit)
	}
	return v
}

func (c *Chip) txif() uint32 {
	var v uint32
	for n := 0; n <= 31; n++ {
		q := &c.q[n]
		if !q.tx || q.depth == 0 {
			continue
		}
		var con uint32
		if n == 0 {
			con = c.reg[mcp2518fd.AddrTXQCON]
		} else {
			con = c.reg[fifoAddr(n)]
		}
		st := c.status(n, q)
		// TXQ has no half-empty flag; bit 1 is unused there.
		hit := (bit(con, 0) && bit(st, 0)) || (n != 0 && bit(con, 1) && bit(st, 1)) || (bit(con, 2) && bit(st, 2))
		v = setBit(v, uint(n), hit)
	}
	return v
}

func (c *Chip) tefFlag() bool {
	q := &c.q[tefIndex]
	if q.depth == 0 {
		return false
	}
	con := c.reg[mcp2518fd.AddrTEFCON]
	return (bit(con, 0) && !q.empty()) || (bit(con, 1) && q.half()) ||
		(bit(con, 2) && q.full()) || (bit(con, 3) && q.ovf)
}

func (c *Chip) intReg() uint32 {
	v := c.reg[mcp2518fd.AddrINT] &^ intFlagsRO
	v = setBit(v, 0, c.txif() != 0)
	v = setBit(v, 1, c.rxif() != 0)
	v = setBit(v, 4, c.tefFlag())
	v = setBit(v, 11, c.readSFR(mcp2518fd.AddrRXOVIF) != 0)
	return v
}

func lowest(v uint32) (int, bool) {
	for i := 0; i < 32; i++ {
		if bit(v, uint(i)) {
			return i, true
		}
	}
	return 0, false
}

func (c *Chip) vec() uint32 {
	in := c.intReg()
	rx, tx := c.rxif(), c.txif()
	icode := uint32(mcp2518fd.ICodeNone)
	rxcode := uint32(mcp2518fd.RxCodeNone)
	txcode := uint32(mcp2518fd.TxCodeNone)
	var filhit uint32

	if n, ok := lowest(rx); ok {
		rxcode = uint32(n)
		q := &c.q[n]
		off := q.base + q.tail*q.elem
		filhit = binary.LittleEndian.Uint32(c.ram[off+4:]) >> 11 & 0x1F
	}
	if n, ok := lowest(tx); ok {
		txcode = uint32(n)
	}

	var pending uint32
	if bit(in, 16) {
		pending |= tx
	}
	if bit(in, 17) {
		pending |= rx
	}
	specials := []struct {
		flag, enable uint
		code         mcp2518fd.InterruptFlagCode
	}{
		{13, 29, mcp2518fd.ICodeError},
		{14, 30, mcp2518fd.ICodeWakeUp},
		{11, 27, mcp2518fd.ICodeRxOverflow},
		{2, 18, mcp2518fd.ICodeTBCOverflow},
		{3, 19, mcp2518fd.ICodeOpModeChange},
		{15, 31, mcp2518fd.ICodeInvalidMessage},
		{4, 20, mcp2518fd.ICodeTEF},
		{10, 26, mcp2518fd.ICodeTxAttempt},
	}
	if n, ok := lowest(pending); ok {
		icode = uint32(n)
	} else {
		for _, s := range specials {
			if bit(in, s.flag) && bit(in, s.enable) {
				icode = uint32(s.code)
				break
			}
		}
	}
	return icode | filhit<<8 | txcode<<16 | rxcode<<24
}

func (c *Chip) writeSFR(a uint16, v uint32) {
	if n, kind, ok := queueReg(a); ok {
		switch kind {
		case 0:
			c.writeQueueControl(a, n, v)
		case 4:
			// Only the overflow and attempt flags are writable, and only to clear.
			q := &c.q[n]
			if q.ovf && !bit(v, 3) {
				q.ovf = false
			}
		}
		return
	}
	switch a {
	case mcp2518fd.AddrCiCON:
		c.writeCiCON(v)
	case mcp2518fd.AddrINT:
		old := c.reg[a]
		// Flags are cleared by writing zero and never set by software.
		flags := old & v & 0xFFFF
		c.reg[a] = v&0xFFFF0000 | flags
	case mcp2518fd.AddrTBC:
		c.tbc = v
	case mcp2518fd.AddrVEC, mcp2518fd.AddrRXIF, mcp2518fd.AddrTXIF, mcp2518fd.AddrRXOVIF,
		mcp2518fd.AddrTXATIF, mcp2518fd.AddrTXREQ, mcp2518fd.AddrTREC, mcp2518fd.AddrBDIAG0,
		mcp2518fd.AddrDEVID:
	default:
		c.reg[a] = v
	}
}

func (c *Chip) writeCiCON(v uint32) {
	old := c.reg[mcp2518fd.AddrCiCON]
	from := mcp2518fd.CiCON(old).OPMOD()
	v = v&^(7<<21) | old&(7<<21)
	con := mcp2518fd.CiCON(v)
	req := con.REQOP()
	if !c.StuckMode && req != from {
		v = v&^(7<<21) | uint32(req)<<21
		c.reg[mcp2518fd.AddrCiCON] = v
		c.reg[mcp2518fd.AddrINT] |= 1 << 3
		c.modeChanged(from, req)
		return
	}
	c.reg[mcp2518fd.AddrCiCON] = v
}

func (c *Chip) modeChanged(from, to mcp2518fd.OperationMode) {
	switch {
	case to == mcp2518fd.ModeConfiguration:
		c.q = [tefIndex + 1]queue{}
	case from == mcp2518fd.ModeConfiguration:
		c.layout()
	}
	c.transmitPending()
}

// layout assigns RAM the way the chip does on leaving Configuration mode:
// TEF, then TXQ, then FIFO1..FIFO31, each depth*element bytes.
func (c *Chip) layout() {
	con := c.reg[mcp2518fd.AddrCiCON]
	off := 0
	place := func(n, depth, elem int, tx bool) {
		if off+depth*elem > mcp2518fd.RAMSize {
			depth = 0
		}
		c.q[n] = queue{base: off, depth: depth, elem: elem, tx: tx}
		off += depth * elem
	}
	if bit(con, 19) {
		tef := mcp2518fd.TEFCON(c.reg[mcp2518fd.AddrTEFCON])
		elem := 8
		if tef.TEFTSEN() {
			elem += 4
		}
		place(tefIndex, int(tef.FSIZE()), elem, false)
	}
	if bit(con, 20) {
		txq := mcp2518fd.TXQCON(c.reg[mcp2518fd.AddrTXQCON])
		place(0, int(txq.FSIZE()), 8+txq.PLSIZE().Bytes(), true)
	}
	for n := 1; n <= 31; n++ {
		f := mcp2518fd.FIFOCON(c.reg[fifoAddr(n)])
		elem := 8 + f.PLSIZE().Bytes()
		if !f.TXEN() && f.RXTSEN() {
			elem += 4
		}
		place(n, int(f.FSIZE()), elem, f.TXEN())
	}
}

func (c *Chip) writeQueueControl(a uint16, n int, v uint32) {
	q := &c.q[n]
	uinc, txreq, freset := bit(v, 8), bit(v, 9), bit(v, 10)
	v &^= 1<<8 | 1<<9 | 1<<10
	if n == 0 {
		v |= 1 << 7
	}
	if c.mode() == mcp2518fd.ModeConfiguration {
		c.reg[a] = v
		return
	}
	// Outside Configuration mode only the interrupt enables and the
	// command bits take effect.
	c.reg[a] = c.reg[a]&^0x1F | v&0x1F
	if freset {
		*q = queue{base: q.base, depth: q.depth, elem: q.elem, tx: q.tx}
	}
	if uinc && q.depth > 0 {
		if q.tx {
			if !q.full() {
				q.head = (q.head + 1) % q.depth
				q.count++
			}
		} else if !q.empty() {
			q.tail = (q.tail + 1) % q.depth
			q.count--
		}
	}
	if txreq && q.tx && n <= 31 {
		q.req = true
		c.transmitPending()
	}
}

func transmitting(m mcp2518fd.OperationMode) bool {
	switch m {
	case mcp2518fd.ModeNormalCANFD, mcp2518fd.ModeNormalCAN20,
		mcp2518fd.ModeInternalLoopback, mcp2518fd.ModeExternalLoopback:
		return true
	}
	return false
}

func loopback(m mcp2518fd.OperationMode) bool {
	return m == mcp2518fd.ModeInternalLoopback || m == mcp2518fd.ModeExternalLoopback
}

func (c *Chip) transmitPending() {
	m := c.mode()
	if !transmitting(m) {
		return
	}
	for n := 0; n <= 31; n++ {
		q := &c.q[n]
		if !q.tx || !q.req {
			continue
		}
		for !q.empty() {
			off := q.base + q.tail*q.elem
			obj := c.ram[off : off+q.elem]
			c.transmitted(obj, m)
			q.tail = (q.tail + 1) % q.depth
			q.count--
		}
		q.req = false
	}
}

func (c *Chip) transmitted(obj []byte, m mcp2518fd.OperationMode) {
	h := mcp2518fd.DecodeTxHeader(obj[:8])
	size, _ := mcp2518fd.LengthForDLC(h.DLC, h.FDF)
	if h.RTR {
		size = 0
	}
	if size > len(obj)-8 {
		size = len(obj) - 8
	}
	data := obj[8 : 8+size]

	if tef := &c.q[tefIndex]; tef.depth > 0 {
		if tef.full() {
			tef.ovf = true
		} else {
			off := tef.base + tef.head*tef.elem
			copy(c.ram[off:off+8], obj[:8])
			if tef.elem > 8 {
				binary.LittleEndian.PutUint32(c.ram[off+8:], c.tbc)
			}
			tef.head = (tef.head + 1) % tef.depth
			tef.count++
		}
	}
	if loopback(m) {
		_ = c.deliver(obj[:8], data)
	} else {
		fr := mcp2518fd.TxEventObject{Header: h}.Frame()
		if !h.RTR {
			copy(fr.Data[:], data)
		}
		if len(c.sent) >= maxLogged {
			c.sent = c.sent[1:]
		}
		c.sent = append(c.sent, fr)
	}
	c.signal()
}

// Inject queues fr as if it had been received from the bus.
func (c *Chip) Inject(fr can.Frame) error {
	m, err := mcp2518fd.TxMessageFromFrame(fr, 0)
	if err != nil {
		return err
	}
	obj, n := m.Bytes()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.mode() {
	case mcp2518fd.ModeConfiguration, mcp2518fd.ModeSleep:
		return ErrNotReceiving
	}
	err = c.deliver(obj[:8], obj[8:n])
	if err == nil {
		c.signal()
	}
	return err
}

func (c *Chip) matches(flt int, sid, eid uint32, ext bool) bool {
	obj := c.reg[mcp2518fd.AddrFLTOBJ+uint16(8*flt)]
	mask := c.reg[mcp2518fd.AddrMASK+uint16(8*flt)]
	if bit(mask, 30) && bit(obj, 30) != ext {
		return false
	}
	if (sid^obj)&mask&0x7FF != 0 {
		return false
	}
	return ((eid^(obj>>11))&(mask>>11))&0x3FFFF == 0
}

func (c *Chip) deliver(hdr, data []byte) error {
	w0 := binary.LittleEndian.Uint32(hdr[0:4])
	w1 := binary.LittleEndian.Uint32(hdr[4:8])
	sid, eid, ext := w0&0x7FF, w0>>11&0x3FFFF, bit(w1, 4)
	for flt := 0; flt < mcp2518fd.NumFilters; flt++ {
		fltcon := c.reg[mcp2518fd.AddrFLTCON+uint16(4*(flt/4))]
		slot := uint(8 * (flt % 4))
		if !bit(fltcon, slot+7) || !c.matches(flt, sid, eid, ext) {
			continue
		}
		n := int(fltcon >> slot & 0x1F)
		q := &c.q[n]
		if n == 0 || q.tx || q.depth == 0 {
			continue
		}
		if q.full() {
			q.ovf = true
			return ErrOverflow
		}
		off := q.base + q.head*q.elem
		rx := w1&0x1FF | uint32(flt)<<11
		binary.LittleEndian.PutUint32(c.ram[off:], w0)
		binary.LittleEndian.PutUint32(c.ram[off+4:], rx)
		p := off + 8
		if mcp2518fd.FIFOCON(c.reg[fifoAddr(n)]).RXTSEN() {
			binary.LittleEndian.PutUint32(c.ram[p:], c.tbc)
			p += 4
		}
		room := off + q.elem - p
		if len(data) < room {
			room = len(data)
		}
		copy(c.ram[p:p+room], data[:room])
		q.head = (q.head + 1) % q.depth
		q.count++
		return nil
	}
	return ErrNoFilter
}
