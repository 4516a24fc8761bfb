package mcp2518fd

// ConfigureFilter writes filter f. The filter is disabled first; a nil
// config leaves it disabled. Otherwise the object, mask and buffer pointer
// are written and the filter is enabled last.
//
// A standard identifier in ID or Mask leaves the EID bits zero. With
// DNCNT set, those bits match the first data bytes of standard frames.
func (d *Device) ConfigureFilter(f Filter, c *FilterConfig) error {
	if !f.Valid() {
		_, err := FLTOBJ(0).addressAt(f)
		return err
	}
	g, slot := f.Group()
	err := ModifyRepeated(d, g, func(r FLTCON) FLTCON {
		r.SetFLTEN(slot, false)
		return r
	})
	if err != nil || c == nil {
		return err
	}
	if !c.FIFO.Valid() {
		_, err := c.FIFO.base()
		return err
	}

	err = ModifyRepeated(d, f, func(r FLTOBJ) FLTOBJ {
		sid, eid := c.ID.split()
		r.SetSID(uint16(sid))
		r.SetEID(eid)
		r.SetEXIDE(c.Mode == MatchExtendedOnly)
		return r
	})
	if err != nil {
		return err
	}
	err = ModifyRepeated(d, f, func(r MASK) MASK {
		sid, eid := c.Mask.split()
		r.SetMSID(uint16(sid))
		r.SetMEID(eid)
		r.SetMIDE(c.Mode != MatchBoth)
		return r
	})
	if err != nil {
		return err
	}
	return ModifyRepeated(d, g, func(r FLTCON) FLTCON {
		r.SetFBP(slot, c.FIFO)
		r.SetFLTEN(slot, true)
		return r
	})
}
