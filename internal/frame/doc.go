// Package frame implements the gateway wire framing.
//
// Every message in either direction is UTF-8 text followed by a single NUL
// byte. There is no length prefix and no other delimiter. Requests and
// responses strictly alternate on a connection.
//
//	fr := frame.NewReader(conn, frame.DefaultChunkSize)
//	cmd, err := fr.Next()
//	if errors.Is(err, frame.ErrEndOfStream) {
//	    return // peer went away
//	}
//	_ = frame.Write(conn, "SUCCESS done")
package frame
