// Package render turns a composed timeline into the final video.
//
// A render job draws the intro and outro cards, concatenates them with the
// reconciled segment clips, mixes the audio bus and muxes both with burned-in
// captions. The muxed file is written next to the output and renamed into
// place once it probes cleanly.
package render
