// Package command defines the units the scheduler works with.
//
// A Command is a unit of robot behavior with a declared set of required
// Subsystems and a four-phase lifecycle:
//
//	Initialize -> Execute, IsFinished (once per tick) -> End(interrupted)
//
// A Subsystem is an exclusive hardware resource. At most one running
// Command holds a Subsystem at any instant; the scheduler owns that
// bookkeeping; this package only describes the entities.
//
// Commands are compared by identity, so implementations must be pointer
// types (or otherwise comparable). Embed Base to get the name,
// requirement set and interruptible flag for free:
//
//	type DriveForward struct {
//	    command.Base
//	    drive *Drivetrain
//	}
//
//	func NewDriveForward(d *Drivetrain) *DriveForward {
//	    c := &DriveForward{Base: command.NewBase("DriveForward"), drive: d}
//	    c.Requires(d.Subsystem)
//	    return c
//	}
package command
