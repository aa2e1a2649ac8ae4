// Package playback runs one playback loop per layout region.
//
// Each region cycles through its playlist in order, showing images for their
// dwell time and handing videos to a Renderer that blocks until the clip
// ends. Video decoders are scarce: an Admission semaphore bounds how many
// regions may play video at once, and a region that cannot get a permit
// plays the images of its playlist only. Every layout change starts a new
// generation; sessions of the previous generation are torn down before the
// new ones start and anything they report afterwards is dropped.
package playback
