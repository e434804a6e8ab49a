// Package port implements port availability probing for the
// portreaper CLI.
//
// The Scanner asks the OS directly whether a port is free by attempting
// to bind it with net.Listen() / net.ListenPacket(). This is the
// authoritative check: it does not depend on parsing /proc/net/* or on
// external commands, and it sees exactly what a new server process
// would see when trying to bind the port.
//
// The reaper uses the Scanner twice per reap: to short-circuit when the
// port is already free, and to verify after signalling that the port
// actually came free (WaitUntilFree).
package port
