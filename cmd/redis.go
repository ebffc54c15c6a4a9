package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"soundsketch/config"
	"soundsketch/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试Redis连接...")

		cfg := config.Load()
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := db.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer client.Close()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Set(ctx, "soundsketch:healthcheck", time.Now().Format(time.RFC3339), time.Minute).Err(); err != nil {
			log.Fatalf("Redis写入测试失败: %v", err)
		}
		val, err := client.Get(ctx, "soundsketch:healthcheck").Result()
		if err != nil {
			log.Fatalf("Redis读取测试失败: %v", err)
		}
		fmt.Printf("Redis基本操作测试成功！(healthcheck=%s)\n", val)
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
