package onewire

// DS2480B serial line driver command set. In command mode every byte is an
// instruction; in data mode bytes are written to the 1-Wire bus and the
// chip returns what it read back.
const (
	ds2480ModeData    = 0xE1
	ds2480ModeCommand = 0xE3

	ds2480CmdBit   = 0x81 // 1 00 D SS 0 1
	ds2480CmdReset = 0xC1 // 1 10 0 SS 0 1
	ds2480CmdPulse = 0xED // 1 11 P 11 0 1, P=0 strong pull-up
	ds2480CmdProg  = 0xFD // 1 11 P 11 0 1, P=1 12V program pulse
	ds2480CmdStop  = 0xF1 // terminate pulse

	ds2480BitOne = 0x10

	ds2480ConfigSlew    = 0x17 // slew rate 1.37 V/us
	ds2480ConfigWrite1  = 0x45 // write-1 low time 10 us
	ds2480ConfigSample  = 0x5B // data sample offset 8 us
	ds2480ReadBaud      = 0x0F
	ds2480ConfigPullup  = 0x3F // strong pull-up duration: until terminated
	ds2480ResetRespMask = 0x03
)

// ds2480SpeedBits returns the SS field for sp.
func ds2480SpeedBits(sp Speed) byte {
	switch sp {
	case SpeedFlex:
		return 0x04
	case SpeedOverdrive:
		return 0x08
	}
	return 0x00
}

// ds2480Reset encodes a reset at speed sp.
func ds2480Reset(sp Speed) byte { return ds2480CmdReset | ds2480SpeedBits(sp) }

// ds2480Bit encodes a single bit slot at speed sp.
func ds2480Bit(bit bool, sp Speed) byte {
	cmd := ds2480CmdBit | ds2480SpeedBits(sp)
	if bit {
		cmd |= ds2480BitOne
	}
	return cmd
}

// ds2480DecodeReset maps the two low response bits to a ResetResult.
func ds2480DecodeReset(resp byte) ResetResult {
	switch resp & ds2480ResetRespMask {
	case 0x00:
		return ResetShort
	case 0x01:
		return ResetPresence
	case 0x02:
		return ResetAlarm
	}
	return ResetNoPresence
}

// ds2480DecodeBit returns the bit read in a single bit response.
func ds2480DecodeBit(resp byte) bool { return resp&0x01 != 0 }

// ds2480EscapeData doubles every mode-switch byte so it is sent as data.
func ds2480EscapeData(buf []byte) []byte {
	out := make([]byte, 0, len(buf)+4)
	for _, b := range buf {
		out = append(out, b)
		if b == ds2480ModeCommand {
			out = append(out, b)
		}
	}
	return out
}

// ds2480DetectSequence configures the chip after its timing byte. The
// responses echo config writes with bit 0 cleared, report 9600 baud and
// read a one bit.
var ds2480DetectSequence = []byte{ds2480ConfigSlew, ds2480ConfigWrite1, ds2480ConfigSample, ds2480ReadBaud, ds2480CmdBit | ds2480BitOne}

func ds2480DetectOK(resp []byte) bool {
	if len(resp) != len(ds2480DetectSequence) {
		return false
	}
	for i := 0; i < 3; i++ {
		if resp[i] != ds2480DetectSequence[i]&^0x01 {
			return false
		}
	}
	return resp[3]&0xF1 == 0x00 && resp[4]&0xF0 == 0x90
}
