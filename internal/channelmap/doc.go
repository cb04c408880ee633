// Package channelmap maps the channels an application works with onto the
// channels of a hardware stream.
//
// A map is a list with one entry per logical channel naming its physical
// channel. Silence (-1) is allowed and never touches hardware. Recording
// gathers physical channels into logical order; playback inverts the map
// and scatters logical channels into ascending physical slots.
package channelmap
