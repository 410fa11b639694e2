// Package server exposes HTTP handlers: the WebSocket upgrade endpoint, a
// health check, and a built-in browser test page for the room protocol.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler returns the upgrade handler bound to the given hub.
// The handler validates the method, upgrades the connection, and registers
// the client; the hub launches the read/write pumps.
func NewWebSocketHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, h, r.RemoteAddr)
		client.hub.register <- client
	}
}

// WebSocketHandler handles WebSocket upgrade requests against the default
// hub.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	NewWebSocketHandler(hub)(w, r)
}

// HealthHandler provides a simple health check endpoint.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "QuickChat relay is running!")
}

// TestPageHandler serves an HTML page that speaks the room protocol,
// including client-side AES-CBC so the relay only ever sees ciphertext.
// The key is derived from the shared passphrase with SHA-256; a fresh
// random 16-byte IV accompanies every message.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>QuickChat Test Client</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 640px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"], input[type="password"] { padding: 5px; margin: 2px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:disabled { background-color: #999; }
        .system { color: #666; font-style: italic; }
        .user { margin: 3px 0; }
    </style>
</head>
<body>
    <h1>QuickChat Test Client</h1>

    <div id="joinForm">
        <input type="text" id="roomId" placeholder="Room code">
        <input type="text" id="nickname" placeholder="Nickname">
        <input type="password" id="passphrase" placeholder="Shared passphrase">
        <button id="joinButton" onclick="joinRoom()">Join</button>
    </div>

    <div id="messages"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let key = null;
        let color = '#' + Math.floor(Math.random() * 0xffffff).toString(16).padStart(6, '0');
        const messagesDiv = document.getElementById('messages');

        function addLine(text, cssClass, lineColor) {
            const el = document.createElement('div');
            el.className = cssClass;
            if (lineColor) { el.style.color = lineColor; }
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        async function deriveKey(passphrase) {
            const digest = await crypto.subtle.digest('SHA-256', new TextEncoder().encode(passphrase));
            return crypto.subtle.importKey('raw', digest, { name: 'AES-CBC' }, false, ['encrypt', 'decrypt']);
        }

        function toHex(bytes) {
            return Array.from(bytes).map(b => b.toString(16).padStart(2, '0')).join('');
        }

        function fromHex(hex) {
            const bytes = new Uint8Array(hex.length / 2);
            for (let i = 0; i < bytes.length; i++) {
                bytes[i] = parseInt(hex.substr(i * 2, 2), 16);
            }
            return bytes;
        }

        async function encryptText(text) {
            const iv = crypto.getRandomValues(new Uint8Array(16));
            const data = new TextEncoder().encode(text);
            const encrypted = await crypto.subtle.encrypt({ name: 'AES-CBC', iv: iv }, key, data);
            return { ciphertext: btoa(String.fromCharCode(...new Uint8Array(encrypted))), iv: toHex(iv) };
        }

        async function decryptText(ciphertext, ivHex) {
            try {
                const data = Uint8Array.from(atob(ciphertext), c => c.charCodeAt(0));
                const decrypted = await crypto.subtle.decrypt({ name: 'AES-CBC', iv: fromHex(ivHex) }, key, data);
                return new TextDecoder().decode(decrypted);
            } catch (e) {
                return '[unable to decrypt]';
            }
        }

        async function joinRoom() {
            const roomId = document.getElementById('roomId').value.trim();
            const nickname = document.getElementById('nickname').value.trim();
            const passphrase = document.getElementById('passphrase').value;
            if (!roomId || !nickname || !passphrase) { return; }

            key = await deriveKey(passphrase);
            ws = new WebSocket('ws://' + location.host + '/ws');

            ws.onopen = function() {
                ws.send(JSON.stringify({ event: 'join', payload: { roomId: roomId, nickname: nickname, color: color } }));
                document.getElementById('messageInput').disabled = false;
                document.getElementById('sendButton').disabled = false;
                document.getElementById('joinButton').disabled = true;
            };

            ws.onmessage = async function(e) {
                const env = JSON.parse(e.data);
                if (env.event === 'currentUsers') {
                    addLine('In the room: ' + (env.payload.map(u => u.nickname).join(', ') || 'nobody else'), 'system');
                } else if (env.event === 'userJoined') {
                    addLine(env.payload.nickname + ' is here', 'system');
                } else if (env.event === 'userLeft') {
                    addLine('someone left (' + env.payload.id + ')', 'system');
                } else if (env.event === 'message') {
                    const msg = env.payload;
                    if (msg.sender === 'System') {
                        addLine(msg.text, 'system');
                    } else {
                        const text = await decryptText(msg.ciphertext, msg.iv);
                        addLine(msg.sender + ': ' + text, 'user', msg.senderColor);
                    }
                }
            };

            ws.onclose = function() {
                addLine('Connection closed', 'system');
                document.getElementById('messageInput').disabled = true;
                document.getElementById('sendButton').disabled = true;
                document.getElementById('joinButton').disabled = false;
            };
        }

        async function sendMessage() {
            const input = document.getElementById('messageInput');
            const text = input.value.trim();
            if (!text || !ws || ws.readyState !== WebSocket.OPEN) { return; }
            const roomId = document.getElementById('roomId').value.trim();
            const enc = await encryptText(text);
            ws.send(JSON.stringify({ event: 'message', payload: { roomId: roomId, ciphertext: enc.ciphertext, iv: enc.iv } }));
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
