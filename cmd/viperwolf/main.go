package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for "Viperwolf" which includes:
 *
 *			AFSK demodulators using the "sound card."
 *			HDLC deframing.
 *			Simple beacon message decoder.
 *			KISS TNC emulator.
 *
 *---------------------------------------------------------------*/

import (
	viperwolf "github.com/doismellburning/viperwolf/src"
)

func main() {
	viperwolf.ViperwolfMain()
}
