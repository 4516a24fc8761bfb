package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
)

func (a *app) newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Send the RESET instruction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := d.Reset(); err != nil {
				return err
			}
			m, err := d.OpMode()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset, mode %s\n", m)
			return nil
		},
	}
}

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device id, operating mode, error counters and bus diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()
			id, err := d.DeviceID()
			if err != nil {
				return err
			}
			m, err := d.OpMode()
			if err != nil {
				return err
			}
			trec, err := d.ErrorCounters()
			if err != nil {
				return err
			}
			b0, b1, err := d.Diagnostics()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "device   id %d rev %d (DEVID 0x%08X)\n", id.ID(), id.REV(), uint32(id))
			fmt.Fprintf(w, "mode     %s\n", m)
			fmt.Fprintf(w, "state    %s tec %d rec %d\n", trec.State(), trec.TEC(), trec.REC())
			fmt.Fprintf(w, "nominal  rx errors %d tx errors %d\n", b0.NRERRCNT(), b0.NTERRCNT())
			fmt.Fprintf(w, "data     rx errors %d tx errors %d\n", b0.DRERRCNT(), b0.DTERRCNT())
			fmt.Fprintf(w, "bdiag1   0x%08X ef messages %d\n", uint32(b1), b1.EFMSGCNT())
			return nil
		},
	}
}

type sfr struct {
	name string
	addr uint16
}

var sfrs = []sfr{
	{"C1CON", mcp2518fd.AddrCiCON},
	{"C1NBTCFG", mcp2518fd.AddrNBTCFG},
	{"C1DBTCFG", mcp2518fd.AddrDBTCFG},
	{"C1TDC", mcp2518fd.AddrTDC},
	{"C1TBC", mcp2518fd.AddrTBC},
	{"C1TSCON", mcp2518fd.AddrTSCON},
	{"C1VEC", mcp2518fd.AddrVEC},
	{"C1INT", mcp2518fd.AddrINT},
	{"C1RXIF", mcp2518fd.AddrRXIF},
	{"C1TXIF", mcp2518fd.AddrTXIF},
	{"C1RXOVIF", mcp2518fd.AddrRXOVIF},
	{"C1TXATIF", mcp2518fd.AddrTXATIF},
	{"C1TXREQ", mcp2518fd.AddrTXREQ},
	{"C1TREC", mcp2518fd.AddrTREC},
	{"C1BDIAG0", mcp2518fd.AddrBDIAG0},
	{"C1BDIAG1", mcp2518fd.AddrBDIAG1},
	{"C1TEFCON", mcp2518fd.AddrTEFCON},
	{"C1TEFSTA", mcp2518fd.AddrTEFSTA},
	{"C1TEFUA", mcp2518fd.AddrTEFUA},
	{"C1TXQCON", mcp2518fd.AddrTXQCON},
	{"C1TXQSTA", mcp2518fd.AddrTXQSTA},
	{"C1TXQUA", mcp2518fd.AddrTXQUA},
	{"OSC", mcp2518fd.AddrOSC},
	{"IOCON", mcp2518fd.AddrIOCON},
	{"CRC", mcp2518fd.AddrCRC},
	{"ECCCON", mcp2518fd.AddrECCCON},
	{"ECCSTAT", mcp2518fd.AddrECCSTAT},
	{"DEVID", mcp2518fd.AddrDEVID},
}

func (a *app) newRegsCmd() *cobra.Command {
	var fifos int
	cmd := &cobra.Command{
		Use:   "regs",
		Short: "Dump the special function registers as name, address and value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fifos < 0 || fifos > 31 {
				return fmt.Errorf("--fifos must be in [0, 31]")
			}
			d, c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()
			regs := sfrs
			for n := 1; n <= fifos; n++ {
				base := mcp2518fd.AddrFIFOCON + uint16(12*(n-1))
				regs = append(regs[:len(regs):len(regs)],
					sfr{fmt.Sprintf("C1FIFOCON%d", n), base},
					sfr{fmt.Sprintf("C1FIFOSTA%d", n), base + 4},
					sfr{fmt.Sprintf("C1FIFOUA%d", n), base + 8},
				)
			}
			w := cmd.OutOrStdout()
			for _, r := range regs {
				v, err := d.ReadSFR(r.addr)
				if err != nil {
					return fmt.Errorf("%s: %w", r.name, err)
				}
				fmt.Fprintf(w, "%-12s 0x%03X 0x%08X\n", r.name, r.addr, v)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&fifos, "fifos", 0, "Also dump the registers of FIFO1..N")
	return cmd
}

func (a *app) newVerifyCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Reset the chip and echo test patterns through message RAM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := d.Reset(); err != nil {
				return err
			}
			check, what := d.VerifySPICommunications, "walking bit"
			if long {
				check, what = d.VerifySPICommunicationsLong, "128 byte block"
			}
			if err := check(); err != nil {
				return fmt.Errorf("%s echo: %w", what, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "spi ok (%s echo)\n", what)
			return nil
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Echo a 128 byte block instead of walking one bit")
	return cmd
}
