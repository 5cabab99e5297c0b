// Package burst implements the SRQ fast-serial transfer protocol.
//
// Drives that have a shift register wired to SRQ (1570, 1571) can move a
// byte per strobe burst instead of the bit-banged standard handshake. This
// needs a small resident program in drive RAM. Engine.Init identifies the
// drive, uploads the matching program image to the load address, checks the
// byte count the drive accepted and lets the program start. After that the
// Read and Write methods exchange bytes through a Port, normally the
// iec.SRQPort of the bus engine.
//
// Program images must be shorter than 256 bytes. Anything longer would run
// into the job queue in zero page and make the drive seek to random tracks,
// so such an image is rejected before the upload starts.
package burst
