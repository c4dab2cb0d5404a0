package config

import (
	"errors"
	"fmt"
)

// Settings are the protocol knobs shared by both ends of a connection. They are
// passed explicitly to every stream, session and element.
type Settings struct {
	// TickRate is the simulation rate in ticks per second.
	TickRate int `yaml:"tickRate" json:"tickRate"`
	// PacketRate is the target number of packets per second per session.
	PacketRate int `yaml:"packetRate" json:"packetRate"`
	// ReliableBufferDepth bounds the receive buffer of reliable fields.
	ReliableBufferDepth int `yaml:"reliableBufferDepth" json:"reliableBufferDepth"`
	// RatePadding is added to PacketRate to form the inbound packet ceiling.
	RatePadding int `yaml:"ratePadding" json:"ratePadding"`
	// MaxPacketSize is the largest payload a session will accept.
	MaxPacketSize int `yaml:"maxPacketSize" json:"maxPacketSize"`
	// MaxReplayEntriesPerTick bounds how many recorded packets a replay feeds per tick.
	MaxReplayEntriesPerTick int `yaml:"maxReplayEntriesPerTick" json:"maxReplayEntriesPerTick"`
	// DefaultGroup is the visibility group given to newly admitted sessions.
	DefaultGroup uint32 `yaml:"defaultGroup" json:"defaultGroup"`
}

// DefaultSettings returns the stock protocol configuration.
func DefaultSettings() Settings {
	return Settings{
		TickRate:                60,
		PacketRate:              20,
		ReliableBufferDepth:     8,
		RatePadding:             10,
		MaxPacketSize:           16 * 1024,
		MaxReplayEntriesPerTick: 4,
		DefaultGroup:            0x3,
	}
}

// PacketInterval is the number of simulation ticks between packets.
func (s Settings) PacketInterval() int {
	if s.PacketRate <= 0 || s.TickRate <= s.PacketRate {
		return 1
	}
	return s.TickRate / s.PacketRate
}

// UnreliableDepth is the receive buffer depth of unreliable fields: one slot per
// tick between packets plus one.
func (s Settings) UnreliableDepth() int {
	return s.PacketInterval() + 1
}

// Depth returns the receive buffer depth for a field.
func (s Settings) Depth(reliable bool) int {
	if reliable {
		if s.ReliableBufferDepth < 1 {
			return 1
		}
		return s.ReliableBufferDepth
	}
	return s.UnreliableDepth()
}

// MaxInputApplies bounds how often one element may appear in one input packet.
func (s Settings) MaxInputApplies() int {
	return s.UnreliableDepth()
}

// MaxPacketsPerSecond is the inbound packet ceiling for a server session.
func (s Settings) MaxPacketsPerSecond() int {
	return s.PacketRate + s.RatePadding
}

// Validate reports settings that cannot drive a stream.
func (s Settings) Validate() error {
	var errs []error
	if s.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tickRate must be positive, got %d", s.TickRate))
	}
	if s.PacketRate <= 0 {
		errs = append(errs, fmt.Errorf("packetRate must be positive, got %d", s.PacketRate))
	}
	if s.PacketRate > s.TickRate && s.TickRate > 0 {
		errs = append(errs, fmt.Errorf("packetRate %d exceeds tickRate %d", s.PacketRate, s.TickRate))
	}
	if s.ReliableBufferDepth <= 0 || s.ReliableBufferDepth > 255 {
		errs = append(errs, fmt.Errorf("reliableBufferDepth must be in [1,255], got %d", s.ReliableBufferDepth))
	}
	if s.UnreliableDepth() > 255 {
		errs = append(errs, fmt.Errorf("tickRate/packetRate ratio too large: depth %d", s.UnreliableDepth()))
	}
	if s.RatePadding < 0 {
		errs = append(errs, fmt.Errorf("ratePadding must not be negative, got %d", s.RatePadding))
	}
	if s.MaxPacketSize <= 0 {
		errs = append(errs, fmt.Errorf("maxPacketSize must be positive, got %d", s.MaxPacketSize))
	}
	if s.MaxReplayEntriesPerTick <= 0 {
		errs = append(errs, fmt.Errorf("maxReplayEntriesPerTick must be positive, got %d", s.MaxReplayEntriesPerTick))
	}
	return errors.Join(errs...)
}
