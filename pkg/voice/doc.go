// Package voice runs a live, duplex voice (and optionally vision) session
// against a streaming model.
//
// A Session owns everything one conversation needs: the microphone capture
// pipeline, the camera frame sampler, the remote streaming connection, the
// gapless playback scheduler, and the transcript accumulators. All state
// changes happen on a single actor goroutine. Device callbacks and remote
// events are posted to it as messages tagged with the session token that
// was current when they were registered; messages carrying a superseded
// token are dropped.
//
// # Usage
//
//	sess, err := voice.NewSession(voice.DefaultConfig().WithAPIKey(key), voice.Devices{
//	    Microphone: openMic,
//	    Speaker:    openSpeaker,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Shutdown()
//
//	sess.OnStateChange(func(st voice.State) {
//	    fmt.Println(st.Status, st.OutputTranscript)
//	})
//
//	if err := sess.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Providers
//
// Remote implementations register a DialFunc per Provider. The bundled
// package provides "gemini" (google.golang.org/genai) and "gemini-ws" (raw
// websocket). "mock" is built in.
//
// # Playback
//
// Inbound audio is scheduled back to back on the speaker's timeline:
// each chunk starts at max(cursor, now) and advances the cursor by its
// duration. An interruption from the server stops everything scheduled
// and resets the cursor.
package voice
