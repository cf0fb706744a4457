package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// At 16kHz 16-bit mono = 32000 bytes/second, 100ms chunks = 3200 bytes
const chunkSize = 3200
const chunkIntervalMs = 100

type serverMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	State     *struct {
		IsListening bool   `json:"isListening"`
		IsSpeaking  bool   `json:"isSpeaking"`
		Transcript  string `json:"transcript"`
		Error       string `json:"error"`
	} `json:"state"`
	Format string `json:"format"`
	Size   int    `json:"size"`
	Error  string `json:"error"`
}

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverAddr := flag.String("server", "localhost:8080", "Service host:port")
	speakText := flag.String("speak", "", "Ask the service to speak this text after streaming")
	wait := flag.Duration("wait", 5*time.Second, "How long to keep printing updates after the stream ends")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", sampleRate)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/v1/voice/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", u.String())

	go printUpdates(conn)

	if err := conn.WriteJSON(map[string]string{"type": "start"}); err != nil {
		log.Fatalf("Failed to send start: %v", err)
	}

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)
		if err := conn.WriteMessage(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}
		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))
	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		log.Fatalf("Failed to send stop: %v", err)
	}
	if *speakText != "" {
		if err := conn.WriteJSON(map[string]string{"type": "speak", "text": *speakText}); err != nil {
			log.Fatalf("Failed to send speak: %v", err)
		}
	}

	time.Sleep(*wait)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func printUpdates(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			log.Printf("Received %d bytes of synthesized audio", len(data))
			continue
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Unreadable message: %s", data)
			continue
		}
		switch msg.Type {
		case "session":
			log.Printf("Session %s", msg.SessionID)
		case "state":
			log.Printf("listening=%v speaking=%v transcript=%q error=%q",
				msg.State.IsListening, msg.State.IsSpeaking, msg.State.Transcript, msg.State.Error)
		case "audio":
			log.Printf("Audio clip: format=%s size=%d", msg.Format, msg.Size)
		case "error":
			log.Printf("Error: %s", msg.Error)
		}
	}
}
