// Package uart provides the serial channel used to talk to the MTK7697 ROM
// bootloader.
package uart

// The channel owns exactly one open port at a time. Changing the baud rate
// always closes the current port before a new one is opened, so the number
// of opens never exceeds the number of closes by more than one.
//
// Reads are byte oriented and always carry a deadline. A read that times out
// returns the no-data sentinel (ok == false) instead of an error, which lets
// the handshake loops keep their retry accounting without ever blocking
// forever on a dead line.
