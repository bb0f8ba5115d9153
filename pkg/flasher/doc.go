// Package flasher implements the MTK7697 flash orchestration state machine.
//
// A run forces the target into its ROM bootloader through the reset and
// bootstrap lines, synchronizes with the bootloader over the UART, uploads
// the download agent and then writes the loader, Wi-Fi and Bluetooth
// segments in that order:
//
//	Idle -> ConfiguringGpio
//	  for each segment:
//	    EnteringBootloader -> HandshakeAtLowBaud -> LoadingDownloadAgent ->
//	    SwitchingToHighBaud -> SelectingSegment -> HandshakeAtHighBaud ->
//	    TransferringImage
//	-> ReleasingGpio -> Terminal
//
// Every segment ends with a tagged Outcome collected into a Report. A failed
// handshake or transfer only fails its own segment, the remaining segments
// are still attempted. A hardware fault stops the run.
package flasher
