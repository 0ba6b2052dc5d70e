// Copyright 2026 The SessionTrack Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package netinfo resolves the network facts recorded on a session:
// the client address carried by the request and the server's own
// IPv4 and hardware address. Resolution is best effort; an address
// that cannot be determined resolves to Unknown rather than failing
// the operation.
package netinfo

import (
	"context"
	"net"
	"sync"
)

// Unknown is the placeholder recorded when an address cannot be resolved.
const Unknown = "unknown"

type contextKey string

const clientAddressKey contextKey = "client_address"

// WithClientAddress stores the client address on the request context.
func WithClientAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, clientAddressKey, addr)
}

// Provider supplies the network facts captured at session creation.
type Provider interface {
	// ClientAddress returns the client address stored on the context,
	// or Unknown when none was recorded.
	ClientAddress(ctx context.Context) string

	// ServerAddress returns the server's primary IPv4 address.
	ServerAddress() string

	// ServerHardwareAddress returns the MAC of the interface that
	// carries the server address.
	ServerHardwareAddress() string
}

// SystemProvider resolves server facts from the host's interfaces.
// The interface scan runs once; the result is cached for the process
// lifetime.
type SystemProvider struct {
	once sync.Once
	ip   string
	mac  string
}

// NewSystemProvider creates a provider backed by the host interfaces.
func NewSystemProvider() *SystemProvider {
	return &SystemProvider{}
}

func (p *SystemProvider) ClientAddress(ctx context.Context) string {
	if addr, ok := ctx.Value(clientAddressKey).(string); ok && addr != "" {
		return addr
	}
	return Unknown
}

func (p *SystemProvider) ServerAddress() string {
	p.resolve()
	return p.ip
}

func (p *SystemProvider) ServerHardwareAddress() string {
	p.resolve()
	return p.mac
}

func (p *SystemProvider) resolve() {
	p.once.Do(func() {
		p.ip = Unknown
		p.mac = Unknown

		ifaces, err := net.Interfaces()
		if err != nil {
			return
		}

		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				ipNet, ok := addr.(*net.IPNet)
				if !ok || ipNet.IP.To4() == nil {
					continue
				}
				p.ip = ipNet.IP.String()
				if hw := iface.HardwareAddr.String(); hw != "" {
					p.mac = hw
				}
				return
			}
		}
	})
}

// StaticProvider returns fixed values; used in tests.
type StaticProvider struct {
	Client string
	IP     string
	MAC    string
}

func (p *StaticProvider) ClientAddress(ctx context.Context) string {
	if addr, ok := ctx.Value(clientAddressKey).(string); ok && addr != "" {
		return addr
	}
	if p.Client != "" {
		return p.Client
	}
	return Unknown
}

func (p *StaticProvider) ServerAddress() string {
	if p.IP == "" {
		return Unknown
	}
	return p.IP
}

func (p *StaticProvider) ServerHardwareAddress() string {
	if p.MAC == "" {
		return Unknown
	}
	return p.MAC
}
