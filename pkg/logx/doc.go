// Package logx is a thin zerolog wrapper shared by all aepd components.
//
// It exists so that packages can take a logx.Logger value without caring
// where output goes: the daemon wires a console writer and, optionally, a
// JSON file sink from config. The zero value is a safe no-op logger, which
// keeps tests quiet without plumbing.
package logx
