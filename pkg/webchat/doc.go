// Package webchat composes the chat server: websocket message handlers,
// the REST API and the process lifecycle.
//
// Ownership model:
//   - The session.Registry owns live engines and their outbound fan-out.
//   - Connections attach to the chats they start or post to; a connection's
//     attachments are dropped when its storage is released on disconnect.
//   - Widget runs execute on the requesting connection and report through
//     WIDGET_UPDATED only.
package webchat
