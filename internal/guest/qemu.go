package guest

import "fmt"

// Paths locates the artifacts and host endpoints a guest is launched with.
type Paths struct {
	Hypervisor    string
	Kernel        string
	Initrd        string
	Firmware      string
	DebugSocket   string
	QMPSocket     string
	ConsoleSocket string
	SerialLog     string
	UseSudo       bool
}

// Args returns the full QEMU argument list for t, excluding the hypervisor
// binary itself. The device set mirrors a Kata Containers confidential guest.
func Args(t Type, p Paths) []string {
	args := machineArgs(t)

	args = append(args,
		"-enable-kvm",
		"-cpu", "EPYC-v4",
		"-smp", "2",
		"-m", "512M,slots=10,maxmem=257720M",

		"-initrd", p.Initrd,
		"-kernel", p.Kernel,
		"-append", "console=ttyS0",
		"-drive", fmt.Sprintf("if=pflash,format=raw,readonly=on,file=%s", p.Firmware),

		"-nographic",
	)

	args = append(args, kataArgs(p)...)

	return args
}

func machineArgs(t Type) []string {
	const (
		machine     = "q35,accel=kvm,nvdimm=on,kernel_irqchip=split"
		confMachine = machine + ",confidential-guest-support=sev0"
	)

	switch t {
	case SNP:
		return []string{
			"-name", "direct-snp",
			"-machine", confMachine,
			"-object", "sev-snp-guest,id=sev0,policy=0x30000,kernel-hashes=off,reduced-phys-bits=5,cbitpos=51",
		}
	case SEV:
		return []string{
			"-name", "direct-sev",
			"-machine", confMachine,
			"-object", "sev-guest,id=sev0,cbitpos=51,reduced-phys-bits=1,policy=0x1",
		}
	case SEVES:
		return []string{
			"-name", "direct-seves",
			"-machine", confMachine,
			"-object", "sev-guest,id=sev0,cbitpos=51,reduced-phys-bits=1,policy=0x5",
		}
	default:
		return []string{
			"-name", "direct-nosev",
			"-machine", machine,
		}
	}
}

func kataArgs(p Paths) []string {
	serialLog := p.SerialLog
	if serialLog == "" {
		serialLog = "serial-output.txt"
	}

	return []string{
		"-device", "virtio-scsi-pci,id=scsi,disable-modern=false",
		"-chardev", fmt.Sprintf("file,id=char0,path=%s", serialLog),
		"-serial", "chardev:char0",

		// firmware debug port, captured by bootbench
		"-chardev", fmt.Sprintf("socket,path=%s,id=fwdbg", p.DebugSocket),
		"-device", "isa-debugcon,iobase=0x402,chardev=fwdbg",

		"-device", "pci-bridge,bus=pcie.0,id=pci-bridge-0,chassis_nr=1,shpc=off,addr=4,io-reserve=4k,mem-reserve=1m,pref64-reserve=1m",
		"-device", "virtio-serial-pci,disable-modern=false,id=serial0",
		"-object", "rng-random,id=rng0,filename=/dev/urandom",
		"-device", "virtio-rng-pci,rng=rng0",
		"-global", "kvm-pit.lost_tick_policy=discard",

		"-qmp", fmt.Sprintf("unix:%s,server=on,wait=off", p.QMPSocket),

		"-rtc", "base=utc,driftfix=slew,clock=host",

		"-netdev", "tap,id=network-0,script=qemu-ifup,downscript=no,ifname=tap0,vhost=on",
		"-device", "driver=virtio-net-pci,netdev=network-0,mac=ba:2f:08:16:18:aa,disable-modern=false,mq=on,vectors=4",

		"-object", "memory-backend-file,id=dimm1,size=512M,mem-path=/dev/shm,share=on",
		"-numa", "node,memdev=dimm1",

		"-device", "virtconsole,chardev=charconsole0,id=console0",
		"-chardev", fmt.Sprintf("socket,id=charconsole0,path=%s,server=on,wait=off", p.ConsoleSocket),
	}
}
