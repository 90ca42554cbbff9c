// Package client provides a Go SDK for the Miri agent service.
//
// Every operation is described by a static Endpoint (path template, verb,
// parameter placement, content type, security and response format). A call
// turns that description into a FullRequestParams, merges it with the client
// defaults and any per-call RequestOption, lets the configured
// CredentialInjector add authentication, encodes the body and issues exactly
// one HTTP request.
//
// # Basic Usage
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithServerKey("server-key"),
//	    client.WithAdminAuth("admin", "secret"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := c.SubmitPrompt(ctx, client.PromptRequest{Prompt: "hello"})
//
// # Streaming
//
//	s, err := c.StreamPrompt(ctx, client.StreamPromptQuery{Prompt: "hello"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//	for s.Next() {
//	    fmt.Print(s.Chunk())
//	}
//
// # WebSocket
//
//	ws, err := c.DialWebSocket(ctx, client.WSQuery{ClientID: client.NewClientID()})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ws.Close()
//	_ = ws.SendPrompt("hello")
//	for msg := range ws.Messages() {
//	    fmt.Println(msg.Response)
//	}
//
// # Authentication
//
// Calls whose secure flag resolves to true run the injector with the
// client's current credential (see SetSecurityData). Injector output is
// layered above the client defaults and below the call's own parameters and
// RequestOption overrides, so a caller can always replace an auth header
// explicitly. A nil injector or a nil credential adds nothing.
package client
