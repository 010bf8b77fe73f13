package onewire

// DS2490 USB bridge identifiers.
const (
	VendorIDMaxim   = 0x04FA
	ProductIDDS2490 = 0x2490
)

// Vendor control requests.
const (
	ds2490ControlCmd = 0x00
	ds2490CommCmd    = 0x01
	ds2490ModeCmd    = 0x02
)

// CONTROL functions.
const (
	ds2490CtlResetDevice = 0x0000
	ds2490CtlHaltExeIdle = 0x0004
	ds2490CtlResumeExe   = 0x0005
	ds2490CtlFlushComm   = 0x0008
)

// COMM functions and flags.
const (
	ds2490CommSetDuration = 0x0012
	ds2490CommBitIO       = 0x0020
	ds2490CommPulse       = 0x0030
	ds2490CommReset       = 0x0042
	ds2490CommByteIO      = 0x0052
	ds2490CommBlockIO     = 0x0074

	ds2490FlagIM   = 0x0001 // immediate execution
	ds2490FlagCH   = 0x0002 // change level on ByteIO
	ds2490FlagSPU  = 0x0004 // strong pull-up after the command
	ds2490FlagD    = 0x0008 // data bit for BitIO
	ds2490FlagSE   = 0x0008 // speed change on reset
	ds2490FlagR    = 0x0008 // repeat reset
	ds2490FlagType = 0x0008 // 12V pulse instead of strong pull-up
	ds2490FlagPST  = 0x4000 // presence check on reset
	ds2490FlagF    = 0x0800 // clear buffers on error
)

// MODE functions and values.
const (
	ds2490ModPulseEn       = 0x0000
	ds2490ModSpeedChange   = 0x0001
	ds2490Mod1WireSpeed    = 0x0002
	ds2490ModStrongPUDur   = 0x0003
	ds2490PulseSPUE        = 0x02
	ds2490PulsePROG        = 0x01
	ds2490StrongPUInfinite = 0x00
)

// Status packet layout and flags.
const (
	ds2490StatusLen     = 16
	ds2490StatusFlags   = 8
	ds2490StatusCommCmd = 11
	ds2490StatusDataIn  = 13

	ds2490StSPUA  = 0x01 // strong pull-up active
	ds2490StPRGA  = 0x02 // program pulse active
	ds2490St12VP  = 0x04 // 12V present
	ds2490StPMOD  = 0x08 // powered mode
	ds2490StHALT  = 0x10
	ds2490StIDLE  = 0x20
	ds2490StEPOF  = 0x80
	ds2490Detect  = 0xA5 // device detect result code
	ds2490ResNRS  = 0x01 // no presence
	ds2490ResSH   = 0x02 // short
	ds2490ResAPP  = 0x04 // alarming presence
	ds2490ResVPP  = 0x08
	ds2490ResCMP  = 0x10
	ds2490ResCRC  = 0x20
	ds2490ResRDP  = 0x40
	ds2490ResEOS  = 0x80
	ds2490FIFOMax = 64
)

// ds2490Speed maps a bus speed to the 1WIRE_SPEED mode value.
func ds2490Speed(sp Speed) uint16 {
	switch sp {
	case SpeedFlex:
		return 1
	case SpeedOverdrive:
		return 2
	}
	return 0
}

// ds2490Status is one decoded status endpoint packet.
type ds2490Status struct {
	Flags   byte
	CommCmd byte // commands left in the buffer
	DataIn  byte // bytes waiting in the read FIFO
	Results []byte
}

func decodeDS2490Status(pkt []byte) (ds2490Status, bool) {
	if len(pkt) < ds2490StatusLen {
		return ds2490Status{}, false
	}
	st := ds2490Status{
		Flags:   pkt[ds2490StatusFlags],
		CommCmd: pkt[ds2490StatusCommCmd],
		DataIn:  pkt[ds2490StatusDataIn],
	}
	for _, r := range pkt[ds2490StatusLen:] {
		if r != ds2490Detect {
			st.Results = append(st.Results, r)
		}
	}
	return st, true
}

// idle reports that the bridge finished every queued command.
func (st ds2490Status) idle() bool {
	return st.Flags&ds2490StIDLE != 0 && st.CommCmd == 0
}

// resetResult maps the result codes of a reset to a ResetResult.
func (st ds2490Status) resetResult() ResetResult {
	res := ResetPresence
	for _, r := range st.Results {
		switch {
		case r&ds2490ResSH != 0:
			return ResetShort
		case r&ds2490ResNRS != 0:
			res = ResetNoPresence
		case r&ds2490ResAPP != 0:
			res = ResetAlarm
		}
	}
	return res
}
