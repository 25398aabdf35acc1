package edgeview

import (
	"net"

	"github.com/tauraamui/edgeview/pkg/api"
	"github.com/tauraamui/edgeview/pkg/database/dbconn"
)

func OverloadConnectDB(overload func() (dbconn.GormWrapper, error)) func() {
	connectDBRef := connectDB
	connectDB = overload
	return func() { connectDB = connectDBRef }
}

func APIAddr(s *Server) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.api == nil {
		return nil
	}
	return api.Addr(s.api)
}
