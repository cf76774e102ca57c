package wire

// UpRequestKind discriminates a client-to-server request after handshake.
type UpRequestKind uint8

const (
	// UpRequestPing carries an echo token; the server replies with Pong.
	UpRequestPing UpRequestKind = iota
	// UpRequestBye requests a graceful disconnect.
	UpRequestBye
	// UpRequestApp carries an opaque application payload, forwarded
	// verbatim between the driver and the peer.
	UpRequestApp
)

// UpRequest is a client-to-server message sent after the handshake.
type UpRequest struct {
	Kind UpRequestKind
	Ping uint32
	App  []byte
}

func (r *UpRequest) marshal(buf []byte) []byte {
	buf = appendByte(buf, byte(r.Kind))
	switch r.Kind {
	case UpRequestPing:
		buf = appendUint32(buf, r.Ping)
	case UpRequestApp:
		buf = appendBytesField(buf, r.App)
	}
	return buf
}

func (r *UpRequest) unmarshal(c *cursor) error {
	kind, err := c.byte()
	if err != nil {
		return err
	}
	r.Kind = UpRequestKind(kind)
	switch r.Kind {
	case UpRequestPing:
		v, err := c.uint32()
		if err != nil {
			return err
		}
		r.Ping = v
	case UpRequestApp:
		b, err := c.bytesField()
		if err != nil {
			return err
		}
		r.App = b
	}
	return nil
}

// DownResponseKind discriminates a server-to-client event.
type DownResponseKind uint8

const (
	// DownResponsePong answers UpRequestPing.
	DownResponsePong DownResponseKind = iota
	// DownResponseProposeUpgrade announces a newer driver to fetch.
	DownResponseProposeUpgrade
	// DownResponseApp carries an opaque application payload.
	DownResponseApp
)

// DownResponse is a server-to-client message sent after the handshake.
type DownResponse struct {
	Kind DownResponseKind
	Pong uint32
	URI  string
	Info DriverInfo
	App  []byte
}

func (r *DownResponse) marshal(buf []byte) []byte {
	buf = appendByte(buf, byte(r.Kind))
	switch r.Kind {
	case DownResponsePong:
		buf = appendUint32(buf, r.Pong)
	case DownResponseProposeUpgrade:
		buf = appendStringField(buf, r.URI)
		buf = r.Info.marshal(buf)
	case DownResponseApp:
		buf = appendBytesField(buf, r.App)
	}
	return buf
}

func (r *DownResponse) unmarshal(c *cursor) error {
	kind, err := c.byte()
	if err != nil {
		return err
	}
	r.Kind = DownResponseKind(kind)
	switch r.Kind {
	case DownResponsePong:
		v, err := c.uint32()
		if err != nil {
			return err
		}
		r.Pong = v
	case DownResponseProposeUpgrade:
		uri, err := c.stringField()
		if err != nil {
			return err
		}
		r.URI = uri
		if err := r.Info.unmarshal(c); err != nil {
			return err
		}
	case DownResponseApp:
		b, err := c.bytesField()
		if err != nil {
			return err
		}
		r.App = b
	}
	return nil
}

// UpControlKind discriminates a driver-to-host out-of-band directive.
type UpControlKind uint8

const (
	// UpControlDownload asks the host loader to fetch and install a driver.
	UpControlDownload UpControlKind = iota
)

// UpControl is sent by a loaded driver to its host loader, out of band from
// the server connection (e.g. a driver that wants to self-update).
type UpControl struct {
	Kind UpControlKind
	URI  string
	Info DriverInfo
}

func (u *UpControl) marshal(buf []byte) []byte {
	buf = appendByte(buf, byte(u.Kind))
	buf = appendStringField(buf, u.URI)
	buf = u.Info.marshal(buf)
	return buf
}

func (u *UpControl) unmarshal(c *cursor) error {
	kind, err := c.byte()
	if err != nil {
		return err
	}
	u.Kind = UpControlKind(kind)
	uri, err := c.stringField()
	if err != nil {
		return err
	}
	u.URI = uri
	return u.Info.unmarshal(c)
}
