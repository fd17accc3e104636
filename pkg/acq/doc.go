// Package acq is the core of the acquisition runtime. It ties together
// the pieces an application works with directly:
//
//   - Context, the library instance. It owns the registered drivers,
//     input and output formats, the resource reader and the log sink.
//   - Driver, the interface hardware backends implement, and Device, a
//     concrete instrument with its Channels and ChannelGroups.
//   - Session, which runs acquisitions and fans captured packets out to
//     datafeed callbacks in order.
//   - Packet and its payloads (header, meta, logic, analog), the units
//     of the datafeed.
//   - Trigger, Stage and Match, the device-independent description of a
//     trigger condition.
//
// Object lifetimes follow the pkg/lifetime disciplines: Context, Device,
// Session, Trigger and Packet are application-owned, while Channels,
// ChannelGroups, trigger Stages and Matches and packet payloads are
// owned by their parent object and keep it alive while a handle on them
// is outstanding.
package acq
