package bridge

import (
	"github.com/mrz1836/dappbridge/internal/interaction"
	"github.com/mrz1836/dappbridge/internal/message"
	"github.com/mrz1836/dappbridge/internal/rpc"
)

// event is anything the actor loop processes.
type event interface {
	isEvent()
}

// pageEvent is a raw message from the page.
type pageEvent struct {
	data []byte
}

// extensionEvent is a decoded message from the wallet UI.
type extensionEvent struct {
	msg message.Message
}

// proxyEvent carries a proxied result back into the loop.
type proxyEvent struct {
	id   int64
	resp rpc.Response
}

// queryEvent asks for the pending interaction.
type queryEvent struct {
	reply chan<- *interaction.Request
}

func (pageEvent) isEvent()      {}
func (extensionEvent) isEvent() {}
func (proxyEvent) isEvent()     {}
func (queryEvent) isEvent()     {}
