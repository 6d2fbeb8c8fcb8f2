package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"xbeelink/internal/xbee"
)

const deviceKey = "$device"

func deviceFrom(c *ishell.Context) *xbee.LocalDevice {
	return c.Get(deviceKey).(*xbee.LocalDevice)
}

func runShell(device *xbee.LocalDevice, logger *slog.Logger) {
	sh := ishell.New()
	sh.Set(deviceKey, device)
	id := device.Identity()
	sh.SetPrompt(fmt.Sprintf("%s> ", id.NodeID))
	sh.Println("xbeectl interactive shell. Type 'help' for commands.")

	sh.AddCmd(&ishell.Cmd{
		Name: "get",
		Help: "get MNEMONIC - read an AT parameter",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: get MNEMONIC")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			val, err := deviceFrom(c).GetParameter(ctx, c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%s = % X\n", c.Args[0], val)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "set",
		Help: "set MNEMONIC HEXVALUE - write an AT parameter",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("usage: set MNEMONIC HEXVALUE")
				return
			}
			val, err := parseHex(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deviceFrom(c).SetParameter(ctx, c.Args[0], val); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "exec",
		Help: "exec MNEMONIC - run a valueless AT command (e.g. WR, FR)",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: exec MNEMONIC")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deviceFrom(c).ExecuteParameter(ctx, c.Args[0]); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "dio-get",
		Help: "dio-get LINE - read a digital line's value (e.g. DIO3)",
		Func: func(c *ishell.Context) {
			line, err := parseLine(c)
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			v, err := deviceFrom(c).GetDIO(ctx, line)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(v)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "dio-set",
		Help: "dio-set LINE high|low - write a digital output line",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("usage: dio-set LINE high|low")
				return
			}
			line, err := parseLineArg(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			var v xbee.DigitalValue
			switch c.Args[1] {
			case "high":
				v = xbee.High
			case "low":
				v = xbee.Low
			default:
				c.Println("value must be high or low")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deviceFrom(c).SetDIO(ctx, line, v); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "pwm-get",
		Help: "pwm-get LINE - read a PWM duty cycle percentage",
		Func: func(c *ishell.Context) {
			line, err := parseLine(c)
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			pct, err := deviceFrom(c).GetPWMDuty(ctx, line)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%.2f%%\n", pct)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "pwm-set",
		Help: "pwm-set LINE PERCENT - set a PWM duty cycle percentage",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("usage: pwm-set LINE PERCENT")
				return
			}
			line, err := parseLineArg(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			pct, err := strconv.ParseFloat(c.Args[1], 64)
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deviceFrom(c).SetPWMDuty(ctx, line, pct); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "adc-get",
		Help: "adc-get LINE - read a 10-bit analog value",
		Func: func(c *ishell.Context) {
			line, err := parseLine(c)
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			v, err := deviceFrom(c).GetADC(ctx, line)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(v)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "sample",
		Help: "sample - read a full IO sample across every configured line",
		Func: func(c *ishell.Context) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sample, err := deviceFrom(c).GetIOSample(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			for line, v := range sample.Digital {
				c.Printf("%s = %s\n", line, v)
			}
			for line, v := range sample.Analog {
				c.Printf("%s = %d\n", line, v)
			}
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "identity",
		Help: "identity - print the device's cached identity",
		Func: func(c *ishell.Context) {
			id := deviceFrom(c).Identity()
			c.Printf("addr64=%s node_id=%q hw=%s fw=%s protocol=%s\n",
				id.Addr64, id.NodeID, id.HardwareVersion, id.FirmwareVersion, id.Protocol)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "reset",
		Help: "reset - issue a software reset and wait for confirmation",
		Func: func(c *ishell.Context) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deviceFrom(c).Reset(ctx); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	})

	sh.Run()
}

func parseLine(c *ishell.Context) (xbee.IOLine, error) {
	if len(c.Args) != 1 {
		return 0, fmt.Errorf("usage: %s LINE", c.Cmd.Name)
	}
	return parseLineArg(c.Args[0])
}

var lineNames = map[string]xbee.IOLine{
	"DIO0": xbee.DIO0, "DIO1": xbee.DIO1, "DIO2": xbee.DIO2, "DIO3": xbee.DIO3,
	"DIO4": xbee.DIO4, "DIO5": xbee.DIO5, "DIO6": xbee.DIO6, "DIO7": xbee.DIO7,
	"PWM0": xbee.PWM0, "PWM1": xbee.PWM1,
}

func parseLineArg(s string) (xbee.IOLine, error) {
	line, ok := lineNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown line %q", s)
	}
	return line, nil
}
