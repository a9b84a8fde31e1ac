// Package dfplayer drives a DFPlayer-class MP3 module over a serial link.
//
// A Player wraps a comm.Link: the caller-facing operations send commands and
// queries one at a time, inbound notifications are classified into Events,
// fed to the device and playback trackers and then to registered listeners.
//
//	p := dfplayer.New(port)
//	go p.Run(ctx)
//	if _, err := p.WaitAvailable(ctx); err != nil {
//		return err
//	}
//	h, err := p.PlayFolder(ctx, 1, 1)
//	if err != nil {
//		return err
//	}
//	err = h.Wait(ctx)
//
// All listeners run on the goroutine of Run and must return quickly.
package dfplayer
