// authzctl 多签授权网关命令行工具
package main

func main() {
	Execute()
}
