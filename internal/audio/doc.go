// Package audio holds the playable artifact type, WAV container helpers and
// the playback contract used by the narration orchestrator. Real output goes
// through oto/v3; a clock-driven mock player is provided for tests.
package audio
